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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/opentrusty/internal/rbac"
)

// AuthorizeCheckRequest represents a PDP authorization check.
type AuthorizeCheckRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	OrganizationID string `json:"organization_id" binding:"required"`
	Permission     string `json:"permission" binding:"required"`
}

// AuthorizeCheckResponse is the PDP's answer.
type AuthorizeCheckResponse struct {
	Authorized   bool     `json:"authorized"`
	Reason       string   `json:"reason"`
	MatchedGroups []string `json:"matched_groups,omitempty"`
	CacheSource  string   `json:"cache_source"`
}

// AuthorizeCheck answers whether a user may exercise a permission within an
// organization, the RBAC policy decision point's single entry point.
// @Summary Authorization Check
// @Description Answers whether a user may exercise a permission in an organization
// @Tags RBAC
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body AuthorizeCheckRequest true "Check Data"
// @Success 200 {object} AuthorizeCheckResponse
// @Router /authz/check [post]
func (h *Handler) AuthorizeCheck(w http.ResponseWriter, r *http.Request) {
	var req AuthorizeCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	decision, err := h.rbacService.Authorize(r.Context(), req.UserID, req.OrganizationID, req.Permission)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "authorization check failed: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, AuthorizeCheckResponse{
		Authorized:    decision.Allowed,
		Reason:        decision.Reason,
		MatchedGroups: decision.MatchedGroups,
		CacheSource:   string(decision.Source),
	})
}

// CreateGroupRequest represents RBAC group creation data.
type CreateGroupRequest struct {
	ID             string `json:"id" binding:"required"`
	OrganizationID string `json:"organization_id" binding:"required"`
	Name           string `json:"name" binding:"required"`
}

// CreateGroup creates a new permission group within an organization.
// @Summary Create RBAC Group
// @Tags RBAC
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param request body CreateGroupRequest true "Group Data"
// @Success 201 {object} map[string]string
// @Router /rbac/groups [post]
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	group := &rbac.Group{
		ID:             req.ID,
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		CreatedAt:      time.Now(),
	}
	if err := h.rbacService.CreateGroup(r.Context(), group); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create group: "+err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

// AddGroupMemberRequest represents a group-membership grant.
type AddGroupMemberRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	OrganizationID string `json:"organization_id" binding:"required"`
}

// AddGroupMember adds a user to a group and invalidates their cached decisions.
// @Summary Add Group Member
// @Tags RBAC
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param groupID path string true "Group ID"
// @Param request body AddGroupMemberRequest true "Membership Data"
// @Success 200 {object} map[string]string
// @Router /rbac/groups/{groupID}/members [post]
func (h *Handler) AddGroupMember(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var req AddGroupMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.rbacService.AddUserToGroup(r.Context(), groupID, req.UserID, req.OrganizationID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to add group member: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "added"})
}

// GrantGroupPermissionRequest grants a permission to a group.
type GrantGroupPermissionRequest struct {
	PermissionID string `json:"permission_id" binding:"required"`
}

// GrantGroupPermission grants a permission to every member of a group.
// @Summary Grant Group Permission
// @Tags RBAC
// @Accept json
// @Produce json
// @Security CookieAuth
// @Param groupID path string true "Group ID"
// @Param request body GrantGroupPermissionRequest true "Grant Data"
// @Success 200 {object} map[string]string
// @Router /rbac/groups/{groupID}/permissions [post]
func (h *Handler) GrantGroupPermission(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")

	var req GrantGroupPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.rbacService.GrantPermissionToGroup(r.Context(), groupID, req.PermissionID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to grant permission: "+err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "granted"})
}
