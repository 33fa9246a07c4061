// Package publish pushes staged videos to a user's linked platform account.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"postbridge/internal/auth"
	"postbridge/internal/errs"
	"postbridge/internal/google"
	"postbridge/internal/models"
	"postbridge/internal/storage"
	"postbridge/internal/store"
)

// ErrNotLinked means the user has no active account for the target platform.
var ErrNotLinked = errors.New("platform account not linked or inactive")

type Request struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Tags          []string `json:"tags"`
	CategoryID    string   `json:"categoryId"`
	PrivacyStatus string   `json:"privacyStatus"`
	MediaKey      string   `json:"mediaKey"`
	ThumbnailKey  string   `json:"thumbnailKey"`
}

type Service struct {
	posts    store.Posts
	users    store.Users
	accounts store.LinkedAccounts
	linker   *auth.Linker
	provider google.Provider
	media    storage.MediaStore
	logger   *slog.Logger
}

func NewService(logger *slog.Logger, posts store.Posts, users store.Users, accounts store.LinkedAccounts,
	linker *auth.Linker, provider google.Provider, media storage.MediaStore) *Service {
	return &Service{
		posts:    posts,
		users:    users,
		accounts: accounts,
		linker:   linker,
		provider: provider,
		media:    media,
		logger:   logger,
	}
}

// PublishVideo streams a staged media object to the provider and records the
// attempt as a Post row: publishing, then published or failed.
func (s *Service) PublishVideo(ctx context.Context, userID string, req Request) (*models.Post, error) {
	acc, err := s.accounts.GetByUserProvider(ctx, userID, models.ProviderGoogle)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, ErrNotLinked
		}
		return nil, err
	}
	if !acc.IsActive {
		return nil, ErrNotLinked
	}

	post := &models.Post{
		UserID:          userID,
		LinkedAccountID: acc.ID,
		Status:          models.PostStatusPublishing,
		PostType:        "video",
		Title:           req.Title,
		Description:     req.Description,
		MediaKey:        req.MediaKey,
	}
	if req.ThumbnailKey != "" {
		post.ThumbnailKey = &req.ThumbnailKey
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	videoID, err := s.upload(ctx, acc, req)
	if err != nil {
		if markErr := s.posts.MarkFailed(ctx, post.ID, err.Error()); markErr != nil {
			s.logger.Error("post_mark_failed_error", "post_id", post.ID, "error", markErr)
		}
		s.logger.Error("video_publish_failed", "post_id", post.ID, "user_id", userID, "error", err)
		return nil, err
	}

	videoURL := "https://www.youtube.com/watch?v=" + videoID
	if err := s.posts.MarkPublished(ctx, post.ID, videoID, videoURL); err != nil {
		return nil, fmt.Errorf("mark published: %w", err)
	}
	if err := s.users.IncrementPostsThisMonth(ctx, userID); err != nil {
		// counter drift is tolerable; the post itself is live
		s.logger.Warn("post_count_increment_failed", "user_id", userID, "error", err)
	}

	post.Status = models.PostStatusPublished
	post.PlatformPostID = &videoID
	post.PlatformURL = &videoURL

	s.logger.Info("video_published", "post_id", post.ID, "user_id", userID, "video_id", videoID)
	return post, nil
}

func (s *Service) upload(ctx context.Context, acc *models.LinkedAccount, req Request) (string, error) {
	tokens, err := s.linker.DecryptTokens(acc)
	if err != nil {
		return "", err
	}

	media, err := s.media.Fetch(ctx, req.MediaKey)
	if err != nil {
		return "", err
	}
	defer media.Close()

	var thumbnail io.Reader
	if req.ThumbnailKey != "" {
		t, err := s.media.Fetch(ctx, req.ThumbnailKey)
		if err != nil {
			// thumbnail is optional; publish the video regardless
			s.logger.Warn("thumbnail_fetch_failed", "key", req.ThumbnailKey, "error", err)
		} else {
			defer t.Close()
			thumbnail = t
		}
	}

	privacy := req.PrivacyStatus
	if privacy == "" {
		privacy = "private"
	}

	return s.provider.UploadVideo(ctx, acc.ID, tokens, google.VideoMeta{
		Title:         req.Title,
		Description:   req.Description,
		Tags:          req.Tags,
		CategoryID:    req.CategoryID,
		PrivacyStatus: privacy,
	}, media, thumbnail)
}
