package sources

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pulsewire-hq/pulsewire-aggregator/internal/domain"
	"github.com/pulsewire-hq/pulsewire-aggregator/internal/logger"
	"github.com/pulsewire-hq/pulsewire-aggregator/pkg/httpclient"
)

const (
	AdapterReddit = "reddit"

	redditAuthURL    = "https://www.reddit.com/api/v1/access_token"
	redditOAuthBase  = "https://oauth.reddit.com"
	redditPublicBase = "https://www.reddit.com"

	redditDefaultUserAgent  = "pulsewire-aggregator/1.0"
	redditPostsPerSubreddit = 10
)

// redditAdapter fetches new posts from configured subreddits, using OAuth
// client-credentials when an app id/secret is provided and the public JSON
// listing otherwise.
type redditAdapter struct {
	client   *resty.Client
	throttle Throttle
	now      func() time.Time

	authURL    string
	oauthBase  string
	publicBase string

	mu           sync.Mutex
	subreddits   []string
	clientID     string
	clientSecret string
	userAgent    string
	accessToken  string
	tokenExpiry  time.Time
}

// NewRedditAdapter builds the Reddit source adapter.
func NewRedditAdapter(client *resty.Client) Adapter {
	if client == nil {
		client = httpclient.NewRestyHTTPClient(15 * time.Second)
	}
	return &redditAdapter{
		client:     client,
		now:        time.Now,
		authURL:    redditAuthURL,
		oauthBase:  redditOAuthBase,
		publicBase: redditPublicBase,
		userAgent:  redditDefaultUserAgent,
	}
}

func (a *redditAdapter) Name() string { return AdapterReddit }

func (a *redditAdapter) Capabilities() []string { return []string{"reddit", "social"} }

func (a *redditAdapter) Configure(opts map[string]any) error {
	subreddits := OptionStringSlice(opts, "subreddits")
	if len(subreddits) == 0 {
		return fmt.Errorf("reddit adapter requires a subreddits list")
	}

	a.mu.Lock()
	a.subreddits = subreddits
	a.clientID = OptionString(opts, "client_id", "")
	a.clientSecret = OptionString(opts, "client_secret", "")
	a.userAgent = OptionString(opts, ConfigUserAgentKey, redditDefaultUserAgent)
	a.mu.Unlock()

	interval := OptionInt(opts, ConfigFetchIntervalKey, domain.DefaultFetchInterval)
	a.throttle.SetInterval(time.Duration(interval) * time.Second)
	return nil
}

func (a *redditAdapter) ResetThrottle() { a.throttle.Reset() }

// authenticate obtains an OAuth token via the client-credentials grant.
// Returns false when no app credentials are configured (public fallback).
func (a *redditAdapter) authenticate(ctx context.Context) bool {
	a.mu.Lock()
	id, secret, agent := a.clientID, a.clientSecret, a.userAgent
	tokenValid := a.accessToken != "" && a.now().Before(a.tokenExpiry)
	a.mu.Unlock()

	if id == "" || secret == "" {
		return false
	}
	if tokenValid {
		return true
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}

	resp, err := a.client.R().
		SetContext(ctx).
		SetBasicAuth(id, secret).
		SetHeader("User-Agent", agent).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&tokenResp).
		Post(a.authURL)
	if err != nil || resp.IsError() || tokenResp.AccessToken == "" {
		logger.WarnObj("reddit authentication failed, using public listing", "reddit_auth", map[string]any{
			"error": errString(err),
		})
		return false
	}

	expiresIn := tokenResp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	a.mu.Lock()
	a.accessToken = tokenResp.AccessToken
	a.tokenExpiry = a.now().Add(time.Duration(expiresIn-60) * time.Second)
	a.mu.Unlock()
	return true
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Selftext   string  `json:"selftext"`
	URL        string  `json:"url"`
	Permalink  string  `json:"permalink"`
	Author     string  `json:"author"`
	CreatedUTC float64 `json:"created_utc"`
	Over18     bool    `json:"over_18"`
	Spoiler    bool    `json:"spoiler"`
	Thumbnail  string  `json:"thumbnail"`
	Score      int     `json:"score"`
	Subreddit  string  `json:"subreddit"`
}

func (a *redditAdapter) Fetch(ctx context.Context) ([]domain.ContentRecord, error) {
	a.mu.Lock()
	subreddits := a.subreddits
	agent := a.userAgent
	a.mu.Unlock()

	if len(subreddits) == 0 {
		return nil, fmt.Errorf("reddit adapter is not configured")
	}

	now := a.now()
	if !a.throttle.Due(now) {
		return []domain.ContentRecord{}, nil
	}

	authenticated := a.authenticate(ctx)

	succeeded := 0
	records := make([]domain.ContentRecord, 0, len(subreddits)*redditPostsPerSubreddit)
	for _, subreddit := range subreddits {
		listing, status, err := a.fetchSubreddit(ctx, subreddit, agent, authenticated)
		if status == http.StatusTooManyRequests {
			logger.WarnObj("reddit rate limit reached, stopping cycle", "reddit_rate_limit", subreddit)
			break
		}
		if err != nil {
			logger.WarnObj("reddit subreddit fetch failed", "reddit_fetch_error", map[string]any{
				"subreddit": subreddit,
				"error":     err.Error(),
			})
			continue
		}
		records = append(records, a.recordsFromListing(listing, subreddit, now)...)
		succeeded++
	}

	// A cycle where no subreddit answered engages the local backoff.
	if succeeded == 0 {
		a.throttle.Failure(now)
		return records, nil
	}

	a.throttle.Success(now)
	return records, nil
}

func (a *redditAdapter) fetchSubreddit(ctx context.Context, subreddit, agent string, authenticated bool) (*redditListing, int, error) {
	var url string
	req := a.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", agent).
		SetQueryParam("limit", fmt.Sprintf("%d", redditPostsPerSubreddit))

	if authenticated {
		a.mu.Lock()
		token := a.accessToken
		a.mu.Unlock()
		url = fmt.Sprintf("%s/r/%s/new", a.oauthBase, subreddit)
		req.SetHeader("Authorization", "bearer "+token)
	} else {
		url = fmt.Sprintf("%s/r/%s/new.json", a.publicBase, subreddit)
	}

	var listing redditListing
	resp, err := req.SetResult(&listing).Get(url)
	if err != nil {
		return nil, 0, fmt.Errorf("fetch r/%s: %w", subreddit, err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		return nil, resp.StatusCode(), nil
	}
	if resp.IsError() {
		return nil, resp.StatusCode(), fmt.Errorf("r/%s returned status %d", subreddit, resp.StatusCode())
	}
	return &listing, resp.StatusCode(), nil
}

func (a *redditAdapter) recordsFromListing(listing *redditListing, subreddit string, now time.Time) []domain.ContentRecord {
	if listing == nil {
		return nil
	}

	records := make([]domain.ContentRecord, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.ID == "" {
			continue
		}

		permalink := post.URL
		if post.Permalink != "" {
			permalink = "https://reddit.com" + post.Permalink
		}

		ts := now
		if post.CreatedUTC > 0 {
			ts = time.Unix(int64(post.CreatedUTC), 0)
		}

		tags := []string{subreddit, "reddit"}
		if post.Over18 {
			tags = append(tags, "nsfw")
		}
		if post.Spoiler {
			tags = append(tags, "spoiler")
		}

		var media []string
		if isHTTPURL(post.Thumbnail) {
			media = append(media, post.Thumbnail)
		}

		rec := domain.ContentRecord{
			ID:         "reddit_" + post.ID,
			Source:     "r/" + subreddit,
			SourceType: AdapterReddit,
			Title:      firstNonEmpty(post.Title, "No Title"),
			Content:    firstNonEmpty(post.Selftext, post.URL),
			Timestamp:  ts,
			URL:        permalink,
			Author:     post.Author,
			Tags:       tags,
			MediaURLs:  media,
			Metadata: map[string]any{
				"score":     post.Score,
				"subreddit": subreddit,
			},
		}
		rec.Normalize()
		records = append(records, rec)
	}
	return records
}

func (a *redditAdapter) TestConnection(ctx context.Context) error {
	a.mu.Lock()
	agent := a.userAgent
	a.mu.Unlock()

	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", agent).
		Get(a.publicBase + "/r/all/new.json?limit=1")
	if err != nil {
		return fmt.Errorf("probe reddit: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("probe reddit: status %d", resp.StatusCode())
	}
	return nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
