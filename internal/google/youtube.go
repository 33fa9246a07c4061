package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"
)

type channelListResponse struct {
	Items []struct {
		ID      string `json:"id"`
		Snippet struct {
			Title     string `json:"title"`
			CustomURL string `json:"customUrl"`
		} `json:"snippet"`
		Statistics json.RawMessage `json:"statistics"`
	} `json:"items"`
}

type channelStatistics struct {
	ViewCount       string `json:"viewCount"`
	SubscriberCount string `json:"subscriberCount"`
	VideoCount      string `json:"videoCount"`
}

// FetchChannel returns the channel owned by the authorized account. The
// channel id, not the OAuth subject, is the stable provider-side identity the
// linkage keys on. ErrNoChannel when the account owns none.
func (c *Client) FetchChannel(ctx context.Context, accountID string, tokens Tokens) (*Channel, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("part", "snippet,statistics")
	q.Set("mine", "true")

	var out channelListResponse
	if err := c.getJSON(ctx, accountID, tokens, channelsURL+"?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	if len(out.Items) == 0 {
		return nil, ErrNoChannel
	}

	item := out.Items[0]
	var stats channelStatistics
	_ = json.Unmarshal(item.Statistics, &stats)

	return &Channel{
		ID:          item.ID,
		Title:       item.Snippet.Title,
		CustomURL:   item.Snippet.CustomURL,
		Subscribers: parseCount(stats.SubscriberCount),
		Views:       parseCount(stats.ViewCount),
		Videos:      parseCount(stats.VideoCount),
		RawStats:    item.Statistics,
	}, nil
}

// FetchUserInfo returns the OIDC profile for the authorized account.
func (c *Client) FetchUserInfo(ctx context.Context, accountID string, tokens Tokens) (*UserInfo, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var out struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture string `json:"picture"`
	}
	if err := c.getJSON(ctx, accountID, tokens, "https://openidconnect.googleapis.com/v1/userinfo", &out); err != nil {
		return nil, err
	}
	return &UserInfo{Name: out.Name, Email: out.Email, Picture: out.Picture}, nil
}

// report rows mix a date string with numeric metrics, so cells stay raw
// until typed per position
type reportsResponse struct {
	Rows [][]json.RawMessage `json:"rows"`
}

// FetchDailyMetrics requests the day-by-day report for [start, end]. The
// caller keeps today out of the window; the provider reports it incomplete.
func (c *Client) FetchDailyMetrics(ctx context.Context, accountID string, tokens Tokens, start, end time.Time) ([]DayMetrics, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("ids", "channel==MINE")
	q.Set("startDate", start.Format("2006-01-02"))
	q.Set("endDate", end.Format("2006-01-02"))
	q.Set("metrics", "views,likes,comments,shares")
	q.Set("dimensions", "day")
	q.Set("sort", "day")

	var out reportsResponse
	if err := c.getJSON(ctx, accountID, tokens, reportsURL+"?"+q.Encode(), &out); err != nil {
		return nil, err
	}

	metrics := make([]DayMetrics, 0, len(out.Rows))
	for _, row := range out.Rows {
		// row layout follows the requested dimensions+metrics order
		if len(row) < 5 {
			continue
		}
		var dayStr string
		if err := json.Unmarshal(row[0], &dayStr); err != nil {
			continue
		}
		day, err := time.Parse("2006-01-02", dayStr)
		if err != nil {
			continue
		}
		m := DayMetrics{
			Date:     day,
			Views:    rawToInt(row[1]),
			Likes:    rawToInt(row[2]),
			Comments: rawToInt(row[3]),
			Shares:   rawToInt(row[4]),
		}
		if m.Views > 0 {
			m.EngagementRate = float64(m.Likes+m.Comments+m.Shares) / float64(m.Views)
		}
		metrics = append(metrics, m)
	}
	return metrics, nil
}

type uploadResponse struct {
	ID string `json:"id"`
}

// UploadVideo publishes a video via the multipart upload endpoint and sets
// the thumbnail when one is supplied. Returns the provider video id.
func (c *Client) UploadVideo(ctx context.Context, accountID string, tokens Tokens, meta VideoMeta, media io.Reader, thumbnail io.Reader) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	categoryID := meta.CategoryID
	if categoryID == "" {
		categoryID = "22" // People & Blogs, the provider default for this app
	}
	metadata := map[string]any{
		"snippet": map[string]any{
			"title":       meta.Title,
			"description": meta.Description,
			"tags":        meta.Tags,
			"categoryId":  categoryID,
		},
		"status": map[string]any{
			"privacyStatus": meta.PrivacyStatus,
		},
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeUploadBody(mw, metadata, media)
		mw.Close()
		pw.CloseWithError(err)
	}()

	q := url.Values{}
	q.Set("part", "snippet,status")
	q.Set("uploadType", "multipart")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL+"?"+q.Encode(), pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())

	resp, err := c.apiClient(ctx, accountID, tokens).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apiError(resp)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}

	if thumbnail != nil {
		if err := c.setThumbnail(ctx, accountID, tokens, out.ID, thumbnail); err != nil {
			// the video is live; thumbnail failure is not fatal
			c.logger.Warn("thumbnail_set_failed", "video_id", out.ID, "error", err)
		}
	}

	return out.ID, nil
}

func (c *Client) setThumbnail(ctx context.Context, accountID string, tokens Tokens, videoID string, thumbnail io.Reader) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	q := url.Values{}
	q.Set("videoId", videoID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, thumbnailsURL+"?"+q.Encode(), thumbnail)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "image/png")

	resp, err := c.apiClient(ctx, accountID, tokens).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, accountID string, tokens Tokens, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.apiClient(ctx, accountID, tokens).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apiError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func writeUploadBody(mw *multipart.Writer, metadata map[string]any, media io.Reader) error {
	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	part, err := mw.CreatePart(metaHeader)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(part).Encode(metadata); err != nil {
		return err
	}

	mediaHeader := textproto.MIMEHeader{}
	mediaHeader.Set("Content-Type", "application/octet-stream")
	part, err = mw.CreatePart(mediaHeader)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, media)
	return err
}

func apiError(resp *http.Response) error {
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return fmt.Errorf("%w: status %d: %s", ErrProvider, resp.StatusCode, string(detail))
}

func parseCount(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func rawToInt(raw json.RawMessage) int64 {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	v, _ := n.Int64()
	return v
}
