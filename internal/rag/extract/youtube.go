package extract

import (
	"context"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/akolanti/ResearchAssistant/internal/domain/ragErrors"
	"github.com/akolanti/ResearchAssistant/pkg/logger_i"
	"github.com/akolanti/ResearchAssistant/pkg/retry"
)

const defaultTimedTextURL = "https://video.google.com/timedtext"

var videoIdPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/|youtube\.com/shorts/)([a-zA-Z0-9_-]{11})`),
	regexp.MustCompile(`youtube\.com/watch\?.*v=([a-zA-Z0-9_-]{11})`),
}

// VideoId accepts watch, short link, embed and shorts URLs.
func VideoId(raw string) (string, bool) {
	for _, p := range videoIdPatterns {
		if m := p.FindStringSubmatch(raw); m != nil {
			return m[1], true
		}
	}
	if u, err := url.Parse(raw); err == nil && (u.Hostname() == "www.youtube.com" || u.Hostname() == "youtube.com") {
		if v := u.Query().Get("v"); v != "" {
			return v, true
		}
	}
	return "", false
}

type timedText struct {
	Entries []struct {
		Start string `xml:"start,attr"`
		Dur   string `xml:"dur,attr"`
		Text  string `xml:",chardata"`
	} `xml:"text"`
}

type Youtube struct {
	client   *http.Client
	retry    retry.Config
	baseURL  string
	language string
	logger   *logger_i.Logger
}

func NewYoutube(client *http.Client, r retry.Config) *Youtube {
	return &Youtube{
		client:   client,
		retry:    r,
		baseURL:  defaultTimedTextURL,
		language: "en",
		logger:   logger_i.NewLogger("extract_youtube"),
	}
}

// Extract renders the transcript one "[mm:ss] text" line per caption, each line is a locator.
func (y *Youtube) Extract(ctx context.Context, src Source) (Result, error) {
	id, ok := VideoId(src.Location)
	if !ok {
		return Result{}, ragErrors.New(ragErrors.KindValidation, "invalid youtube url")
	}
	log := y.logger.WithContext(ctx).With("videoId", id)
	log.Info("Extracting transcript")

	transcript, err := retry.DoWithResult(ctx, y.retry, func(ctx context.Context) (timedText, error) {
		return y.fetch(ctx, id)
	})
	if err != nil {
		return Result{}, err
	}
	if len(transcript.Entries) == 0 {
		return Result{}, ragErrors.New(ragErrors.KindExtraction, "no transcript available for this video")
	}

	var s segments
	s.sep = "\n"
	for _, e := range transcript.Entries {
		start, _ := strconv.ParseFloat(e.Start, 64)
		stamp := FormatTimestamp(start)
		s.add(stamp, "["+stamp+"] "+html.UnescapeString(e.Text))
	}
	log.Info("Extracted transcript", "segments", len(transcript.Entries))
	return Result{Text: s.text(), Title: "YouTube Video " + id, Locators: s.locators}, nil
}

func (y *Youtube) fetch(ctx context.Context, id string) (timedText, error) {
	var out timedText
	target := fmt.Sprintf("%s?lang=%s&v=%s", y.baseURL, url.QueryEscape(y.language), url.QueryEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return out, ragErrors.Terminal(ragErrors.KindExtraction, err, "transcript request")
	}
	resp, err := y.client.Do(req)
	if err != nil {
		if retry.TransientNetwork(err) {
			return out, ragErrors.Transient(ragErrors.KindExtraction, err, "failed to fetch transcript")
		}
		return out, ragErrors.Terminal(ragErrors.KindExtraction, err, "failed to fetch transcript")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if retry.TransientHTTPStatus(resp.StatusCode) {
			return out, ragErrors.Transient(ragErrors.KindExtraction, err, "failed to fetch transcript")
		}
		return out, ragErrors.Terminal(ragErrors.KindExtraction, err, "failed to fetch transcript")
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebBodyBytes))
	if err != nil {
		return out, ragErrors.Transient(ragErrors.KindExtraction, err, "failed to read transcript")
	}
	if len(body) == 0 {
		return out, nil
	}
	if err := xml.Unmarshal(body, &out); err != nil {
		return out, ragErrors.Terminal(ragErrors.KindExtraction, err, "malformed transcript")
	}
	return out, nil
}

// FormatTimestamp renders mm:ss, or hh:mm:ss past the first hour.
func FormatTimestamp(seconds float64) string {
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
