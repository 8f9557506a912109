// Package services – UserService
//
// This file implements the user directory: signup, login by username,
// profile updates, the follow graph and eco points. Follower/following
// counters are adjusted in the same transaction as the follow edge, so they
// stay equal to their seed value plus the edges added since.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
	"github.com/tbourn/go-socialcart-backend/internal/repo"
	"github.com/tbourn/go-socialcart-backend/internal/utils"
)

// DefaultAvatarURL is assigned to profiles created through signup.
const DefaultAvatarURL = "https://source.unsplash.com/150x150/?person"

var (
	// usernameRE is applied after folding.
	usernameRE = regexp.MustCompile(`^[a-z0-9._-]{3,32}$`)
	// whitespaceRE collapses consecutive whitespace to a single space.
	whitespaceRE = regexp.MustCompile(`\s+`)
)

// UserService manages profiles, follows and eco points.
type UserService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB

	// NameMaxLen caps display names by rune length.
	NameMaxLen int
	// BioMaxLen caps bios by rune length.
	BioMaxLen int

	fold cases.Caser
}

// NewUserService constructs a UserService with default limits.
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db, NameMaxLen: 128, BioMaxLen: 500, fold: cases.Fold()}
}

// NormalizeUsername folds case and compatibility forms so "JaneDoe" and
// "janedoe" name the same account.
func (s *UserService) NormalizeUsername(username string) (string, error) {
	u := s.fold.String(norm.NFKC.String(strings.TrimSpace(username)))
	u = strings.TrimPrefix(u, "@")
	if !usernameRE.MatchString(u) {
		return "", ErrInvalidUsername
	}
	return u, nil
}

func (s *UserService) normalizeName(name string) (string, error) {
	name = whitespaceRE.ReplaceAllString(strings.TrimSpace(name), " ")
	if name == "" || utf8.RuneCountInString(name) > s.NameMaxLen {
		return "", ErrInvalidName
	}
	return name, nil
}

// Signup creates a profile with the default bio and avatar and zero counters.
func (s *UserService) Signup(ctx context.Context, name, username string) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Signup")
	defer span.End()

	u, err := s.NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	n, err := s.normalizeName(name)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		ID:        uuid.NewString(),
		Username:  u,
		Name:      n,
		Bio:       domain.DefaultBio,
		AvatarURL: DefaultAvatarURL,
	}
	if err := repo.CreateUser(ctx, s.DB, user); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	user.FollowingIDs = []string{}
	span.SetAttributes(attribute.String("user.id", user.ID))
	return user, nil
}

// Login resolves a username to its profile.
func (s *UserService) Login(ctx context.Context, username string) (*domain.User, error) {
	u, err := s.NormalizeUsername(username)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return s.load(ctx, s.DB, func(db *gorm.DB) (*domain.User, error) {
		return repo.GetUserByUsername(ctx, db, u)
	})
}

// Get returns the profile with id, including the ids it follows.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	return s.load(ctx, s.DB, func(db *gorm.DB) (*domain.User, error) {
		return repo.GetUser(ctx, db, id)
	})
}

// GetByUsername returns the profile with username.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.Login(ctx, username)
}

func (s *UserService) load(ctx context.Context, db *gorm.DB, get func(*gorm.DB) (*domain.User, error)) (*domain.User, error) {
	u, err := get(db)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	ids, err := repo.FollowingIDs(ctx, db, u.ID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	u.FollowingIDs = ids
	return u, nil
}

// ListPage returns a page of profiles ordered by username and the total count.
func (s *UserService) ListPage(ctx context.Context, page, pageSize int) ([]domain.User, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	total, err := repo.CountUsers(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.User{}, 0, nil
	}
	items, err := repo.ListUsersPage(ctx, s.DB, utils.Offset(page, pageSize), pageSize)
	return items, total, err
}

// ProfileUpdate lists the editable attributes; nil fields are left unchanged.
type ProfileUpdate struct {
	Name      *string
	Username  *string
	Bio       *string
	AvatarURL *string
}

// UpdateProfile applies upd to the profile of id.
func (s *UserService) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*domain.User, error) {
	fields := map[string]any{}
	if upd.Name != nil {
		n, err := s.normalizeName(*upd.Name)
		if err != nil {
			return nil, err
		}
		fields["name"] = n
	}
	if upd.Username != nil {
		u, err := s.NormalizeUsername(*upd.Username)
		if err != nil {
			return nil, err
		}
		fields["username"] = u
	}
	if upd.Bio != nil {
		bio := strings.TrimSpace(*upd.Bio)
		if utf8.RuneCountInString(bio) > s.BioMaxLen {
			bio = string([]rune(bio)[:s.BioMaxLen])
		}
		fields["bio"] = bio
	}
	if upd.AvatarURL != nil {
		fields["avatar_url"] = strings.TrimSpace(*upd.AvatarURL)
	}
	if len(fields) > 0 {
		if err := repo.UpdateUserProfile(ctx, s.DB, id, fields); err != nil {
			switch {
			case errors.Is(err, repo.ErrDuplicate):
				return nil, ErrUsernameTaken
			case errors.Is(err, repo.ErrNotFound):
				return nil, ErrUserNotFound
			}
			return nil, err
		}
	}
	return s.Get(ctx, id)
}

// ToggleFollow follows followeeID when followerID does not follow them yet,
// and unfollows otherwise. It returns the resulting state and the updated
// follower profile.
func (s *UserService) ToggleFollow(ctx context.Context, followerID, followeeID string) (bool, *domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "ToggleFollow",
		trace.WithAttributes(
			attribute.String("follower.id", followerID),
			attribute.String("followee.id", followeeID),
		),
	)
	defer span.End()

	if followerID == followeeID {
		return false, nil, ErrSelfFollow
	}
	var following bool
	var me *domain.User
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range []string{followerID, followeeID} {
			if _, err := repo.GetUser(ctx, tx, id); err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return ErrUserNotFound
				}
				return err
			}
		}
		exists, err := repo.FollowExists(ctx, tx, followerID, followeeID)
		if err != nil {
			return err
		}
		delta := 1
		if exists {
			delta = -1
			err = repo.DeleteFollow(ctx, tx, followerID, followeeID)
		} else {
			err = repo.InsertFollow(ctx, tx, followerID, followeeID)
		}
		if err != nil {
			return err
		}
		if err := repo.AdjustFollowCounters(ctx, tx, followerID, followeeID, delta); err != nil {
			return err
		}
		following = !exists
		me, err = s.load(ctx, tx, func(db *gorm.DB) (*domain.User, error) {
			return repo.GetUser(ctx, db, followerID)
		})
		return err
	})
	if err != nil {
		return false, nil, err
	}
	return following, me, nil
}

// AwardPoints credits points to id. Balances never decrease.
func (s *UserService) AwardPoints(ctx context.Context, id string, points int64) error {
	if points <= 0 {
		return ErrInvalidPoints
	}
	if err := repo.AddEcoPoints(ctx, s.DB, id, points); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// SetOnline stores the presence flag of id.
func (s *UserService) SetOnline(ctx context.Context, id string, online bool) error {
	return repo.SetOnline(ctx, s.DB, id, online)
}

// Leaderboard returns the top users by eco points.
func (s *UserService) Leaderboard(ctx context.Context, limit int) ([]domain.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return repo.Leaderboard(ctx, s.DB, limit)
}

// Seed inserts missing seed users; existing rows are untouched. It returns
// how many users were offered.
func (s *UserService) Seed(ctx context.Context, users []domain.User) (int, error) {
	for i := range users {
		u := users[i]
		if err := repo.UpsertSeedUser(ctx, s.DB, &u); err != nil {
			return i, err
		}
	}
	return len(users), nil
}
