// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/opentrusty/internal/organization"
)

// CreateOrganizationRequest represents organization creation data
type CreateOrganizationRequest struct {
	Name string `json:"name" binding:"required" example:"Acme Corp"`
}

// CreateOrganization handles organization creation. The caller becomes the
// organization's first owner.
// @Summary Create Organization
// @Description Create a new organization, granting the caller the owner role
// @Tags Organization
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body CreateOrganizationRequest true "Organization Data"
// @Success 201 {object} organization.Organization
// @Failure 400 {object} map[string]string
// @Router /organizations [post]
func (h *Handler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req CreateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := GetUserID(r.Context())
	org, err := h.organizationService.CreateOrganization(r.Context(), req.Name, userID)
	if err != nil {
		if err == organization.ErrInvalidName {
			respondError(w, http.StatusBadRequest, "invalid organization name")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create organization: "+err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, org)
}

// GetOrganization retrieves an organization by ID.
// @Summary Get Organization
// @Tags Organization
// @Produce json
// @Security CookieAuth
// @Param organizationID path string true "Organization ID"
// @Success 200 {object} organization.Organization
// @Router /organizations/{organizationID} [get]
func (h *Handler) GetOrganization(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "organizationID")
	org, err := h.organizationService.GetOrganization(r.Context(), orgID)
	if err != nil {
		respondError(w, http.StatusNotFound, "organization not found")
		return
	}
	respondJSON(w, http.StatusOK, org)
}

// AddMemberRequest represents membership grant data.
type AddMemberRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required" example:"member"`
}

// AddOrganizationMember grants a role to a user within an organization.
// @Summary Add Organization Member
// @Tags Organization
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param organizationID path string true "Organization ID"
// @Param request body AddMemberRequest true "Membership Data"
// @Success 200 {object} map[string]string
// @Router /organizations/{organizationID}/members [post]
func (h *Handler) AddOrganizationMember(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "organizationID")

	var req AddMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	grantedBy := GetUserID(r.Context())
	if err := h.organizationService.AddMember(r.Context(), orgID, req.UserID, req.Role, grantedBy); err != nil {
		if err == organization.ErrInvalidRole {
			respondError(w, http.StatusBadRequest, "invalid role")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to add member: "+err.Error())
		return
	}

	if h.rbacService != nil {
		_ = h.rbacService.InvalidateUser(r.Context(), req.UserID, orgID)
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

// RemoveOrganizationMember removes a membership from an organization.
// @Summary Remove Organization Member
// @Tags Organization
// @Produce json
// @Security CookieAuth
// @Param organizationID path string true "Organization ID"
// @Param userID path string true "User ID"
// @Success 200 {object} map[string]string
// @Router /organizations/{organizationID}/members/{userID} [delete]
func (h *Handler) RemoveOrganizationMember(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "organizationID")
	userID := chi.URLParam(r, "userID")

	if err := h.organizationService.RemoveMember(r.Context(), orgID, userID); err != nil {
		if err == organization.ErrLastOwner {
			respondError(w, http.StatusConflict, "cannot remove the last owner")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to remove member: "+err.Error())
		return
	}

	if h.rbacService != nil {
		_ = h.rbacService.InvalidateUser(r.Context(), userID, orgID)
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// ListOrganizationMembers lists every member of an organization.
// @Summary List Organization Members
// @Tags Organization
// @Produce json
// @Security CookieAuth
// @Param organizationID path string true "Organization ID"
// @Success 200 {array} organization.Membership
// @Router /organizations/{organizationID}/members [get]
func (h *Handler) ListOrganizationMembers(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "organizationID")
	members, err := h.organizationService.ListMembers(r.Context(), orgID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list members: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, members)
}
