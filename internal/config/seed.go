package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrSeedNotFound = errors.New("seed file not found")
	ErrSeedParsing  = errors.New("seed parsing failed")
)

// Seed is the YAML document imported by "cli seed". It describes the
// catalog the webhook needs.
type Seed struct {
	BuildServices []SeedBuildService `yaml:"build_services"`
	VCSServices   []SeedVCSService   `yaml:"vcs_services"`
	Users         []SeedUser         `yaml:"users"`
	Projects      []SeedProject      `yaml:"projects"`
	Mappings      []SeedMapping      `yaml:"mappings"`
	RelayTargets  []SeedRelayTarget  `yaml:"relay_targets"`
	// QueuePeriods replaces every stored period when the key is present.
	QueuePeriods []SeedQueuePeriod `yaml:"queue_periods"`
}

type SeedBuildService struct {
	Namespace string `yaml:"namespace"`
	APIURL    string `yaml:"apiurl"`
	WebURL    string `yaml:"weburl"`
}

type SeedVCSService struct {
	Name       string   `yaml:"name"`
	Netloc     string   `yaml:"netloc"`
	Namespaces []string `yaml:"namespaces"`
	// IPs the forge posts hooks from. Empty accepts any source.
	IPs []string `yaml:"ips"`
}

type SeedUser struct {
	Username    string   `yaml:"username"`
	Superuser   bool     `yaml:"superuser"`
	Groups      []string `yaml:"groups"`
	Permissions []string `yaml:"permissions"`
}

type SeedProject struct {
	Name         string   `yaml:"name"`
	BuildService string   `yaml:"build_service"`
	Official     *bool    `yaml:"official"`
	Allowed      *bool    `yaml:"allowed"`
	Groups       []string `yaml:"groups"`
	// Namespaces are "netloc/path" references to vcs_services namespaces.
	Namespaces []string `yaml:"namespaces"`
}

type SeedMapping struct {
	RepoURL      string `yaml:"repourl"`
	Branch       string `yaml:"branch"`
	Project      string `yaml:"project"`
	Package      string `yaml:"package"`
	Token        string `yaml:"token"`
	Debian       string `yaml:"debian"`
	Dumb         string `yaml:"dumb"`
	Notify       *bool  `yaml:"notify"`
	Build        bool   `yaml:"build"`
	Comment      string `yaml:"comment"`
	User         string `yaml:"user"`
	BuildService string `yaml:"build_service"`
}

type SeedRelayTarget struct {
	Name      string `yaml:"name"`
	URL       string `yaml:"url"`
	Active    *bool  `yaml:"active"`
	VerifySSL *bool  `yaml:"verify_ssl"`
	// Sources are "netloc/path" namespace references.
	Sources []string `yaml:"sources"`
}

type SeedQueuePeriod struct {
	StartTime    string   `yaml:"start_time"`
	EndTime      string   `yaml:"end_time"`
	StartDate    string   `yaml:"start_date"`
	EndDate      string   `yaml:"end_date"`
	Recurring    bool     `yaml:"recurring"`
	Comment      string   `yaml:"comment"`
	BuildService string   `yaml:"build_service"`
	Projects     []string `yaml:"projects"`
}

// LoadSeedFile reads and parses a seed document.
func LoadSeedFile(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSeedNotFound, path)
		}
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed parses a seed document. Unknown keys are rejected so typos do
// not silently drop settings.
func ParseSeed(data []byte) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSeedParsing, err)
	}
	return &seed, nil
}
