// Package users registers signed-in identities and resolves their role.
package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"silent-auction/internal/biddingerrors"
	"silent-auction/internal/models"
	"silent-auction/internal/repository"
	"silent-auction/utils"
)

type UserService struct {
	repo   repository.AuctionDB
	admins map[string]struct{} // lower-cased emails registered as admin
}

// NewUserService creates the service. Identities whose email is in
// bootstrapAdmins get the admin role when they first register.
func NewUserService(repo repository.AuctionDB, bootstrapAdmins []string) *UserService {
	admins := make(map[string]struct{}, len(bootstrapAdmins))
	for _, e := range bootstrapAdmins {
		if e = normalizeEmail(e); e != "" {
			admins[e] = struct{}{}
		}
	}
	return &UserService{repo: repo, admins: admins}
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// Register creates the user profile on first sign-in. An existing profile
// keeps its role.
func (s *UserService) Register(ctx context.Context, id *models.Identity) (models.User, error) {
	if id == nil || id.UserID == "" {
		return models.User{}, fmt.Errorf("service: %w - register", biddingerrors.ErrAuthRequired)
	}

	role := models.RoleBidder
	if _, ok := s.admins[normalizeEmail(id.Email)]; ok {
		role = models.RoleAdmin
	}

	user, err := s.repo.CreateUser(ctx, models.User{UserID: id.UserID, Email: id.Email, Role: role})
	if err != nil {
		return models.User{}, fmt.Errorf("service: failed to register user %s: %w", id.UserID, err)
	}

	utils.Info("service: user registered", map[string]any{"user_id": user.UserID, "role": user.Role})
	return user, nil
}

// Resolve looks up the role of an identity once, for the rest of the request.
// Unknown users are bidders; nothing is written.
func (s *UserService) Resolve(ctx context.Context, id *models.Identity) (*models.Principal, error) {
	if id == nil || id.UserID == "" {
		return nil, fmt.Errorf("service: %w - resolve", biddingerrors.ErrAuthRequired)
	}

	user, err := s.repo.GetUser(ctx, id.UserID)
	switch {
	case errors.Is(err, biddingerrors.ErrUserNotFound):
		return &models.Principal{Identity: *id, Role: models.RoleBidder}, nil
	case err != nil:
		return nil, fmt.Errorf("service: failed to resolve user %s: %w", id.UserID, err)
	}

	role := user.Role
	if role != models.RoleAdmin {
		role = models.RoleBidder
	}
	return &models.Principal{Identity: *id, Role: role}, nil
}
