package config

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"unicode/utf8"
)

// Room is a persistent lab location that a session can be bound to.
type Room struct {
	Name                 string
	DisplayName          string
	ParticipantLabelFile string
	UseSecureURLs        bool
}

// HasParticipantLabels reports whether the room has a guest list.
func (r *Room) HasParticipantLabels() bool {
	return r.ParticipantLabelFile != ""
}

// ParticipantLabels reads the guest list, one label per non-blank line.
func (r *Room) ParticipantLabels() ([]string, error) {
	if !r.HasParticipantLabels() {
		return nil, fmt.Errorf("room %q has no participant_label_file", r.Name)
	}
	data, err := os.ReadFile(r.ParticipantLabelFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("room %q references nonexistent participant_label_file %q", r.Name, r.ParticipantLabelFile)
	}
	if err != nil {
		return nil, fmt.Errorf("read participant labels: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("room %q: participant_label_file %q is not valid UTF-8", r.Name, r.ParticipantLabelFile)
	}

	var labels []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			labels = append(labels, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan participant labels: %w", err)
	}
	return labels, nil
}

// ParticipantLinks returns the URLs participants use to enter the room.
// Without a guest list there is a single shared link.
func (r *Room) ParticipantLinks(secretKey string) ([]string, error) {
	base := "/AssignVisitorToRoom/?" + url.Values{"room": {r.Name}}.Encode()
	if !r.HasParticipantLabels() {
		return []string{base}, nil
	}
	labels, err := r.ParticipantLabels()
	if err != nil {
		return nil, err
	}
	links := make([]string, 0, len(labels))
	for _, label := range labels {
		params := url.Values{"room": {r.Name}, "participant_label": {label}}
		if r.UseSecureURLs {
			params.Set("hash", LabelHash(label, secretKey))
		}
		links = append(links, "/AssignVisitorToRoom/?"+params.Encode())
	}
	return links, nil
}

// LabelHash is the 8-character tamper check appended to secure room links.
func LabelHash(label, secretKey string) string {
	sum := sha256.Sum224([]byte(label + secretKey))
	return hex.EncodeToString(sum[:])[:8]
}
