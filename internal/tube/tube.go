package tube

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	EndpointChannels      = "https://youtube.googleapis.com/youtube/v3/channels"
	EndpointPlaylistItems = "https://www.googleapis.com/youtube/v3/playlistItems"
	EndpointVideos        = "https://www.googleapis.com/youtube/v3/videos"

	WatchURLFormat = "https://www.youtube.com/watch?v=%s"
)

// Languages tried in order when picking a caption track,
// before falling back to whatever track is available.
var LanguagePriority = []string{"zh-Hans", "zh", "en", "en-US", "en-GB"}

var (
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrNotOk           = errors.New("unexpected non 200 status code")
	ErrTooManyRequests = errors.New("too many requests")
	ErrNoCaptions      = errors.New("no caption tracks")
	ErrUnavailable     = errors.New("video unavailable")
	ErrNotFound        = errors.New("not found")
)

type Client struct {
	Key string

	// Limits requests against the source, nil means no limiting.
	Limiter *rate.Limiter
}

func (c *Client) wait(ctx context.Context) error {
	if c.Limiter == nil {
		return nil
	}
	return c.Limiter.Wait(ctx)
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	if err := c.wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}

type ChannelInfo struct {
	Id             string
	ContentDetails struct {
		RelatedPlaylists struct {
			Uploads string
		}
	}
	Snippet struct {
		Title string
	}
}

// More is returned, this just outlines what we actually use.
type ResChannelInfo struct {
	Items []ChannelInfo
}

// Uses 1 quota.
func (c *Client) ChannelInfo(ctx context.Context, id string) (*ChannelInfo, error) {
	res, err := c.get(ctx, fmt.Sprintf(
		"%s?part=contentDetails,snippet&id=%s&key=%s",
		EndpointChannels,
		id,
		c.Key,
	))
	if err != nil {
		return nil, fmt.Errorf("retrieving channel info for %q: %w", id, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading channel info body: %w", err)
	}

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusForbidden {
			return nil, ErrQuotaExceeded
		}

		return nil, fmt.Errorf(
			"channel info request responded with status code %d: %q",
			res.StatusCode,
			string(body),
		)
	}

	result := ResChannelInfo{}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unmarshalling channel info: %w", err)
	}

	if len(result.Items) != 1 {
		return nil, fmt.Errorf("channel info returned %d items, expected 1", len(result.Items))
	}

	return &result.Items[0], nil
}

type ResPlaylistItems struct {
	NextPageToken string `json:",omitempty"`
	Items         []PlaylistItem
	PageInfo      struct {
		TotalResults   int
		ResultsPerPage int
	}
}

type PlaylistItem struct {
	ContentDetails struct {
		VideoId          string
		VideoPublishedAt string
	}
	Snippet struct {
		Title       string
		Description string
	}
	Status struct {
		PrivacyStatus string
	}
}

func (c *Client) PlaylistItems(ctx context.Context, playlistId string, token string) (*ResPlaylistItems, error) {
	path := fmt.Sprintf(
		"%s?part=contentDetails,snippet,status&playlistId=%s&key=%s&maxResults=50",
		EndpointPlaylistItems,
		playlistId,
		c.Key,
	)
	if token != "" {
		path += "&pageToken=" + token
	}

	res, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("retrieving playlist %q videos: %w", playlistId, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response of playlist items %q: %w", playlistId, err)
	}

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusForbidden {
			return nil, ErrQuotaExceeded
		}

		return nil, fmt.Errorf(
			"status code %d when retrieving playlist %q's videos: %q",
			res.StatusCode,
			playlistId,
			string(body),
		)
	}

	result := ResPlaylistItems{}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unmarshalling response of playlist items %q: %w", playlistId, err)
	}

	return &result, nil
}

// EachPlaylistItemPage calls f for every page of the playlist until f returns
// false or there are no pages left. Errors from fetching a page are handed to
// f, which decides whether to continue.
func (c *Client) EachPlaylistItemPage(
	ctx context.Context,
	playlistId string,
	f func(*ResPlaylistItems, string, error) bool,
) error {
	var token string
	for {
		items, err := c.PlaylistItems(ctx, playlistId, token)
		cont := f(items, token, err)
		if !cont {
			return nil
		}

		if items == nil || items.NextPageToken == "" {
			return nil
		}

		token = items.NextPageToken
	}
}

type ResVideos struct {
	Items []ResVideo
	// There is more but not needed.
}

type ResVideo struct {
	Id      string
	Snippet struct {
		PublishedAt          string
		ChannelId            string
		Title                string
		Description          string
		LiveBroadcastContent string
	}
	ContentDetails struct {
		Duration string // ISO 8601, ex: PT1H2M3S.
	}
	Statistics struct {
		ViewCount string
	}
}

func (r *ResVideo) IsBroadcast() bool {
	return r.Snippet.LiveBroadcastContent != "none"
}

func (r *ResVideo) Views() int {
	n, err := strconv.Atoi(r.Statistics.ViewCount)
	if err != nil {
		return 0
	}
	return n
}

// DurationSeconds parses the ISO 8601 duration of the video.
func (r *ResVideo) DurationSeconds() int {
	d, err := ParseISODuration(r.ContentDetails.Duration)
	if err != nil {
		return 0
	}
	return int(d / time.Second)
}

// Uses 1 quota.
func (c *Client) Video(ctx context.Context, id string) (*ResVideo, error) {
	res, err := c.get(ctx, fmt.Sprintf(
		"%s?part=snippet,contentDetails,statistics&id=%s&key=%s",
		EndpointVideos,
		id,
		c.Key,
	))
	if err != nil {
		return nil, fmt.Errorf("video %q request: %w", id, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("reading videos %q body: %w", id, err)
	}

	if res.StatusCode != http.StatusOK {
		if res.StatusCode == http.StatusForbidden {
			return nil, ErrQuotaExceeded
		}
		return nil, fmt.Errorf("videos status code %d: %w", res.StatusCode, ErrNotOk)
	}

	result := ResVideos{}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unmarshalling videos response %q: %w", string(body), err)
	}

	if len(result.Items) == 0 {
		return nil, fmt.Errorf("videos result has no items: %w", ErrNotFound)
	}

	return &result.Items[0], nil
}

type ResCaptionsList struct {
	PlayerCaptionsTrackListRenderer struct {
		CaptionTracks []ResTrack
		// There is more, ex:
		// AudioTracks
		// TranslationLanguages
	}
}

type ResTrack struct {
	BaseUrl string
	Name    struct {
		SimpleText string
	}
	LanguageCode   string
	Kind           string
	IsTranslatable bool
}

type Transcript struct {
	Entries []struct {
		Text  string  `xml:",chardata"`
		Start float64 `xml:"start,attr"`
		Dur   float32 `xml:"dur,attr"`
	} `xml:"text"`
}

// Captions scrapes the caption track list from the watch page and downloads
// the best track according to LanguagePriority. The language code of the
// chosen track is returned alongside the parsed timed text.
func (c *Client) Captions(ctx context.Context, videoId string) (*Transcript, string, error) {
	res, err := c.get(ctx, fmt.Sprintf(WatchURLFormat, videoId))
	if err != nil {
		return nil, "", fmt.Errorf("requesting watch page: %w", err)
	}
	defer res.Body.Close()

	content, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading response body: %w", err)
	}
	sContent := string(content)

	if strings.Contains(sContent, `action="https://consent.youtube.com/s"`) {
		return nil, "", fmt.Errorf("got consent form, this was never shown in testing")
	}

	if res.StatusCode != 200 {
		return nil, "", fmt.Errorf(
			"got code %d with body %q: %w",
			res.StatusCode,
			sContent,
			ErrNotOk,
		)
	}

	split := strings.Split(sContent, `"captions":`)
	if len(split) <= 1 {
		if strings.Contains(sContent, `class="g-recaptcha"`) {
			return nil, "", fmt.Errorf("video %q got captcha: %w", videoId, ErrTooManyRequests)
		}

		if strings.Contains(sContent, `"playabilityStatus"`) &&
			strings.Contains(sContent, `"ERROR"`) {
			return nil, "", fmt.Errorf(
				"video %q not playable, maybe unlisted?: %w",
				videoId,
				ErrUnavailable,
			)
		}

		return nil, "", fmt.Errorf("no captions json: %w", ErrNoCaptions)
	}

	rawCaptions := strings.ReplaceAll(strings.Split(split[1], `,"videoDetails`)[0], "\n", "")
	captionsList := ResCaptionsList{}
	if err := json.Unmarshal([]byte(rawCaptions), &captionsList); err != nil {
		return nil, "", fmt.Errorf("could not unmarshal caption results %q: %w", rawCaptions, err)
	}

	track := BestTrack(captionsList.PlayerCaptionsTrackListRenderer.CaptionTracks)
	if track == nil {
		return nil, "", ErrNoCaptions
	}

	res, err = c.get(ctx, track.BaseUrl)
	if err != nil {
		return nil, "", fmt.Errorf("captions request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading captions body: %w", err)
	}

	if res.StatusCode != 200 {
		return nil, "", fmt.Errorf("captions file status code %d: %w", res.StatusCode, ErrNotOk)
	}

	transcript := Transcript{}
	if err := xml.Unmarshal(body, &transcript); err != nil {
		return nil, "", fmt.Errorf("could not parse transcript xml %q: %w", body, err)
	}

	return &transcript, track.LanguageCode, nil
}

// BestTrack picks the track to download: the first language in
// LanguagePriority that has a manual track, then the first priority language
// with any track, then any manual track, then whatever is left.
func BestTrack(tracks []ResTrack) *ResTrack {
	for _, lang := range LanguagePriority {
		for i, t := range tracks {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return &tracks[i]
			}
		}
	}

	for _, lang := range LanguagePriority {
		for i, t := range tracks {
			if t.LanguageCode == lang {
				return &tracks[i]
			}
		}
	}

	for i, t := range tracks {
		if t.Kind != "asr" {
			return &tracks[i]
		}
	}

	if len(tracks) > 0 {
		return &tracks[0]
	}

	return nil
}

func ParsePublishedTime(value string) (time.Time, error) {
	published, err := time.Parse("2006-01-02T15:04:05Z", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse published time %q: %w", value, err)
	}

	return published, nil
}

// ParseISODuration handles the PT#H#M#S subset YouTube uses.
func ParseISODuration(value string) (time.Duration, error) {
	rest, ok := strings.CutPrefix(value, "PT")
	if !ok {
		rest, ok = strings.CutPrefix(value, "P")
		if !ok {
			return 0, fmt.Errorf("duration %q does not start with P", value)
		}
	}

	var total time.Duration
	var num strings.Builder
	for _, ch := range rest {
		if ch >= '0' && ch <= '9' {
			num.WriteRune(ch)
			continue
		}

		if ch == 'T' {
			num.Reset()
			continue
		}

		n, err := strconv.Atoi(num.String())
		if err != nil {
			return 0, fmt.Errorf("duration %q has invalid number before %q", value, ch)
		}
		num.Reset()

		switch ch {
		case 'D':
			total += time.Duration(n) * 24 * time.Hour
		case 'H':
			total += time.Duration(n) * time.Hour
		case 'M':
			total += time.Duration(n) * time.Minute
		case 'S':
			total += time.Duration(n) * time.Second
		default:
			return 0, fmt.Errorf("duration %q has unknown designator %q", value, ch)
		}
	}

	return total, nil
}

// VideoID extracts the 11 character id from a watch URL, "" when absent.
func VideoID(url string) string {
	idx := strings.Index(url, "v=")
	if idx < 0 {
		return ""
	}
	id := url[idx+2:]
	if amp := strings.IndexByte(id, '&'); amp >= 0 {
		id = id[:amp]
	}
	if len(id) != 11 {
		return ""
	}
	for _, ch := range id {
		if !(ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' || ch == '_' || ch == '-') {
			return ""
		}
	}
	return id
}
