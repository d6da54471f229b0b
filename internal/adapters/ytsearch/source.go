package ytsearch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"trendharvest/internal/core/domain"
)

const (
	defaultBinary   = "yt-dlp"
	defaultPageSize = 25
)

// Source discovers trending candidates and lists channel uploads by shelling
// out to yt-dlp in flat-playlist mode. It implements both
// ports.CandidateSource and ports.ChannelFeed.
type Source struct {
	binaryPath string
	timeout    time.Duration
	pageSize   int
}

// New creates a Source. An empty binaryPath falls back to "yt-dlp" on PATH.
func New(binaryPath string, timeout time.Duration) *Source {
	if binaryPath == "" {
		binaryPath = defaultBinary
	}
	return &Source{
		binaryPath: binaryPath,
		timeout:    timeout,
		pageSize:   defaultPageSize,
	}
}

// flatEntry is the subset of yt-dlp's flat-playlist JSON we care about.
type flatEntry struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	URL           string `json:"url"`
	ViewCount     int64  `json:"view_count"`
	Channel       string `json:"channel"`
	ChannelID     string `json:"channel_id"`
	ChannelFollow int64  `json:"channel_follower_count"`
	Thumbnail     string `json:"thumbnail"`
}

// Discover searches each keyword of a topic and returns the merged candidate
// list, deduplicated by video key.
func (s *Source) Discover(ctx context.Context, topic string, keywords []string) ([]domain.Candidate, error) {
	if len(keywords) == 0 {
		keywords = []string{topic}
	}

	seen := make(map[string]bool)
	var out []domain.Candidate
	for _, kw := range keywords {
		target := fmt.Sprintf("ytsearch%d:%s", s.pageSize, kw)
		entries, err := s.list(ctx, target)
		if err != nil {
			return out, fmt.Errorf("failed to search %q: %w", kw, err)
		}
		for _, e := range entries {
			if e.ID == "" || seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			cand := e.toCandidate()
			cand.Topic = topic
			out = append(out, cand)
		}
	}
	return out, nil
}

// FetchChannel lists the most recent uploads of a channel.
func (s *Source) FetchChannel(ctx context.Context, ch domain.ChannelRecord) ([]domain.Candidate, error) {
	if ch.Platform != domain.PlatformYouTube {
		return nil, fmt.Errorf("unsupported platform: %s", ch.Platform)
	}

	target := channelVideosURL(ch.ChannelKey)
	entries, err := s.list(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch channel %s: %w", ch.ChannelKey, err)
	}

	out := make([]domain.Candidate, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			continue
		}
		cand := e.toCandidate()
		cand.ChannelKey = ch.ChannelKey
		cand.Topic = ch.PrimaryTopic()
		out = append(out, cand)
	}
	return out, nil
}

// list runs yt-dlp against a search target or URL and parses one JSON object
// per line.
func (s *Source) list(ctx context.Context, target string) ([]flatEntry, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	args := []string{
		target,
		"--flat-playlist",
		"--dump-json",
		"--no-warnings",
		"--playlist-end", fmt.Sprintf("%d", s.pageSize),
	}

	cmd := exec.CommandContext(ctx, s.binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "no stderr output"
		}
		return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, msg)
	}

	var entries []flatEntry
	scanner := bufio.NewScanner(&stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e flatEntry
		if err := json.Unmarshal(line, &e); err != nil {
			// skip malformed lines, yt-dlp mixes warnings into output
			// on some extractor versions
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("failed to read yt-dlp output: %w", err)
	}
	return entries, nil
}

func (e flatEntry) toCandidate() domain.Candidate {
	url := e.URL
	if url == "" {
		url = "https://www.youtube.com/watch?v=" + e.ID
	}
	return domain.Candidate{
		Platform:    domain.PlatformYouTube,
		VideoKey:    e.ID,
		Title:       e.Title,
		Views:       e.ViewCount,
		URL:         url,
		ChannelName: e.Channel,
		ChannelKey:  e.ChannelID,
		Followers:   e.ChannelFollow,
		Thumbnail:   e.Thumbnail,
	}
}

func channelVideosURL(channelKey string) string {
	if strings.HasPrefix(channelKey, "http://") || strings.HasPrefix(channelKey, "https://") {
		return channelKey
	}
	if strings.HasPrefix(channelKey, "@") {
		return "https://www.youtube.com/" + channelKey + "/videos"
	}
	return "https://www.youtube.com/channel/" + channelKey + "/videos"
}
