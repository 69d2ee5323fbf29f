package media

import (
	"sync"

	"github.com/google/uuid"
)

// Stream groups the tracks returned by one capture request.
type Stream struct {
	id string

	mu     sync.RWMutex
	tracks []Track
}

// NewStream builds a stream owning the given tracks.
func NewStream(tracks ...Track) *Stream {
	return &Stream{id: uuid.NewString(), tracks: tracks}
}

func (s *Stream) ID() string { return s.id }

// Tracks returns every track, live or stopped.
func (s *Stream) Tracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

func (s *Stream) AudioTracks() []Track { return s.byKind(KindAudio) }

// VideoTracks returns camera and screen tracks.
func (s *Stream) VideoTracks() []Track {
	return append(s.byKind(KindVideo), s.byKind(KindScreen)...)
}

// LiveTracks returns the tracks still holding a device.
func (s *Stream) LiveTracks() []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Track
	for _, t := range s.tracks {
		if t.Live() {
			out = append(out, t)
		}
	}
	return out
}

// Stop stops every track in the stream.
func (s *Stream) Stop() {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}

func (s *Stream) byKind(kind Kind) []Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Track
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}
