package profile

import (
	"encoding/json"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/dotsetgreg/pibear/pkg/logger"
	"github.com/dotsetgreg/pibear/pkg/utils"
)

// CityStore maps display names to a preferred weather city.
//
// Entries are keyed by display name, not user id, to stay compatible with
// existing user_cities.json files. Two users sharing a display name share a
// city.
type CityStore struct {
	path        string
	defaultCity string
	mu          sync.Mutex
}

func NewCityStore(path, defaultCity string) *CityStore {
	return &CityStore{path: path, defaultCity: defaultCity}
}

// Get returns the stored city for displayName, or the default city.
func (s *CityStore) Get(displayName string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if city := strings.TrimSpace(s.load()[displayName]); city != "" {
		return city
	}
	return s.defaultCity
}

func (s *CityStore) Set(displayName, city string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.load()
	data[displayName] = city
	return utils.WriteJSONAtomic(s.path, data)
}

func (s *CityStore) load() map[string]string {
	out := map[string]string{}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.WarnCF("profile", "Failed to read city map", map[string]interface{}{"error": err.Error()})
		}
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		logger.WarnCF("profile", "City map is corrupt, starting empty", map[string]interface{}{"error": err.Error()})
		return map[string]string{}
	}
	return out
}
