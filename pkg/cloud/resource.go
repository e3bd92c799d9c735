package cloud

import (
	"fmt"
	"maps"
	"sort"
)

// Kind identifies the type of a created resource.
type Kind string

const (
	KindNetwork       Kind = "Network"
	KindSubnet        Kind = "Subnet"
	KindGateway       Kind = "Gateway"
	KindRouteTable    Kind = "RouteTable"
	KindSecurityGroup Kind = "SecurityGroup"
	KindInstance      Kind = "Instance"
)

// AttrNetworkID records the network a resource was created in or attached to.
const AttrNetworkID = "network-id"

// Kinds lists every kind in creation order of the fixed topology.
var Kinds = []Kind{
	KindNetwork,
	KindSubnet,
	KindGateway,
	KindRouteTable,
	KindSecurityGroup,
	KindInstance,
}

// Rank returns the position of k in the fixed creation order, or -1.
func (k Kind) Rank() int {
	for i, kind := range Kinds {
		if kind == k {
			return i
		}
	}
	return -1
}

// Resource is an entity created by a provisioning run.
type Resource struct {
	Kind       Kind              `json:"kind"`
	ID         string            `json:"id"`
	Name       string            `json:"name,omitempty"`
	Tags       map[string]string `json:"tags,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NewResource returns a resource with private copies of tags and attributes.
func NewResource(kind Kind, id, name string, tags, attrs map[string]string) Resource {
	return Resource{
		Kind:       kind,
		ID:         id,
		Name:       name,
		Tags:       maps.Clone(tags),
		Attributes: maps.Clone(attrs),
	}
}

// Attr returns the named attribute, or "" if unset.
func (r Resource) Attr(key string) string {
	return r.Attributes[key]
}

func (r Resource) String() string {
	if r.Name != "" {
		return fmt.Sprintf("%s %s (%s)", r.Kind, r.ID, r.Name)
	}
	return fmt.Sprintf("%s %s", r.Kind, r.ID)
}

// SortByCreationOrder orders resources by kind rank, keeping the relative
// order of resources of the same kind.
func SortByCreationOrder(resources []Resource) {
	sort.SliceStable(resources, func(i, j int) bool {
		return resources[i].Kind.Rank() < resources[j].Kind.Rank()
	})
}

// MergeTags returns a new map holding base overlaid with extra.
func MergeTags(base map[string]string, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	maps.Copy(out, base)
	maps.Copy(out, extra)
	return out
}
