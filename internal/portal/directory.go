package portal

import (
	"context"
	"fmt"
	"strings"

	"carebook/internal/components/telemetry"

	"github.com/antzucaro/matchr"
)

// Directory is a read-through cache of the services and children listings, one is
// constructed per run and handed to whatever needs the lookups.
type Directory struct {
	client   *Client
	services *Services
	children *Children
}

func NewDirectory(client *Client) *Directory {
	return &Directory{client: client}
}

func (d *Directory) Services(ctx context.Context) (Services, error) {
	if d.services != nil {
		return *d.services, nil
	}
	services, err := d.client.Services(ctx)
	if err != nil {
		return Services{}, err
	}
	d.services = &services
	return services, nil
}

func (d *Directory) Children(ctx context.Context) (Children, error) {
	if d.children != nil {
		return *d.children, nil
	}
	children, err := d.client.Children(ctx)
	if err != nil {
		return Children{}, err
	}
	d.children = &children
	return children, nil
}

// Relations returns every child membership of the given service.
func (d *Directory) Relations(ctx context.Context, serviceID string) ([]Relation, error) {
	children, err := d.Children(ctx)
	if err != nil {
		return nil, err
	}
	var out []Relation
	for _, child := range children.List {
		for _, rel := range child.Relations {
			if string(rel.ServiceID) == serviceID {
				out = append(out, rel)
			}
		}
	}
	return out, nil
}

// minMatchScore is the lowest Jaro-Winkler similarity accepted as a match.
const minMatchScore = 0.7

// Match returns the service whose name is most similar to `name`.
func (d *Directory) Match(ctx context.Context, name string) (Service, error) {
	services, err := d.Services(ctx)
	if err != nil {
		return Service{}, err
	}
	return MatchService(services.Sorted(), name, d.client.tel)
}

// MatchService picks the service with the highest name similarity, an exact id or
// name always wins.
func MatchService(services []Service, name string, tel telemetry.API) (Service, error) {
	query := strings.ToLower(strings.TrimSpace(name))

	var (
		best      Service
		bestScore float64
	)
	for _, svc := range services {
		if svc.ID == name || strings.ToLower(svc.Name) == query {
			return svc, nil
		}
		score := matchr.JaroWinkler(query, strings.ToLower(svc.Name), false)
		tel.ReportDebug("service match", svc.Name, score)
		if score > bestScore {
			best = svc
			bestScore = score
		}
	}
	if bestScore < minMatchScore {
		return Service{}, fmt.Errorf("no service matches '%s'", name)
	}
	return best, nil
}
