package core

import (
	"fmt"
	"net/http"
)

// VCSService is a forge hooks are accepted from.
type VCSService struct {
	ID     int64
	Name   string
	Netloc string
	// IPs lists the addresses or CIDR ranges the forge posts from.
	// Empty accepts any source.
	IPs []string
}

func (s *VCSService) String() string {
	return s.Netloc
}

// RelayTarget is another consumer that receives a copy of the hooks of its
// source namespaces.
type RelayTarget struct {
	ID        int64  `db:"id"`
	Name      string `db:"name"`
	URL       string `db:"url"`
	Active    bool   `db:"active"`
	VerifySSL bool   `db:"verify_ssl"`
}

func (t *RelayTarget) String() string {
	return fmt.Sprintf("%s webhook relay", t.Name)
}

// Hook is an incoming webhook request as received, kept for relaying.
type Hook struct {
	Header http.Header
	Body   []byte
}
