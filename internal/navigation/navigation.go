// ABOUTME: Decision-tree navigation state: Root or inside one accounting domain.
// ABOUTME: Controls which operations are listed to a session, never which are callable.

package navigation

import (
	"fmt"
	"strings"
	"sync"
)

// Names of the two navigation operations.
const (
	SelectToolName = "qbo_select_domain"
	BackToolName   = "qbo_back"
)

// Domain identifies a group of related operations.
type Domain string

// Root is the zero Domain: nothing selected.
const Root Domain = ""

const (
	Customers Domain = "customers"
	Invoices  Domain = "invoices"
	Expenses  Domain = "expenses"
	Payments  Domain = "payments"
	Reports   Domain = "reports"
)

// Domains lists every selectable domain in presentation order.
var Domains = []Domain{Customers, Invoices, Expenses, Payments, Reports}

// ParseDomain validates a domain name. Root is not a valid selection.
func ParseDomain(s string) (Domain, error) {
	d := Domain(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Domains {
		if d == known {
			return d, nil
		}
	}
	return Root, fmt.Errorf("unknown domain %q (want one of %s)", s, strings.Join(DomainNames(), ", "))
}

// DomainNames returns the selectable domain names as strings.
func DomainNames() []string {
	names := make([]string, len(Domains))
	for i, d := range Domains {
		names[i] = string(d)
	}
	return names
}

// State is one session's navigation position. Domain operations never touch it.
// Requests on one HTTP session may arrive concurrently, so access is locked.
type State struct {
	mu       sync.Mutex
	selected Domain
}

// New returns a State at Root.
func New() *State {
	return &State{}
}

// Select moves to d from any state. d is stored in its canonical form.
func (s *State) Select(d Domain) error {
	parsed, err := ParseDomain(string(d))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.selected = parsed
	s.mu.Unlock()
	return nil
}

// Back returns to Root. At Root it is a no-op; the result reports whether a
// domain was left.
func (s *State) Back() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	left := s.selected != Root
	s.selected = Root
	return left
}

// Current returns the selected domain, or Root.
func (s *State) Current() Domain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Listing returns the operation names visible in state current: the select
// operation at Root, otherwise the back operation followed by the domain's own.
func Listing(current Domain, domainOps func(Domain) []string) []string {
	if current == Root {
		return []string{SelectToolName}
	}
	return append([]string{BackToolName}, domainOps(current)...)
}
