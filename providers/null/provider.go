// Package null implements an in-memory cloud. Nothing leaves the process;
// it is used for dry runs and to drive the engine in tests.
package null

import (
	"context"
	"fmt"
	"hash/fnv"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/picklr-io/stackup/pkg/cloud"
)

// Operation names, as recorded in the call log and used for fault injection.
const (
	OpCreateNetwork       = "CreateNetwork"
	OpDeleteNetwork       = "DeleteNetwork"
	OpCreateSubnet        = "CreateSubnet"
	OpDeleteSubnet        = "DeleteSubnet"
	OpCreateGateway       = "CreateGateway"
	OpAttachGateway       = "AttachGateway"
	OpDetachGateway       = "DetachGateway"
	OpDeleteGateway       = "DeleteGateway"
	OpCreateRouteTable    = "CreateRouteTable"
	OpCreateRoute         = "CreateRoute"
	OpAssociateRouteTable = "AssociateRouteTable"
	OpDeleteRouteTable    = "DeleteRouteTable"
	OpCreateSecurityGroup = "CreateSecurityGroup"
	OpAuthorizeIngress    = "AuthorizeIngress"
	OpAuthorizeEgress     = "AuthorizeEgress"
	OpDeleteSecurityGroup = "DeleteSecurityGroup"
	OpCreateInstance      = "CreateInstance"
	OpDescribeInstance    = "DescribeInstance"
	OpTerminateInstance   = "TerminateInstance"
	OpResolveImage        = "ResolveImage"
)

// Options tune the simulated instance lifecycle.
type Options struct {
	// HiddenFor is the number of describes that answer not-found right
	// after launch.
	HiddenFor int
	// ReadyAfter is the number of visible describes that report pending
	// before the instance reaches its launch outcome.
	ReadyAfter int
	// Outcome is the state a launched instance settles in. Defaults to running.
	Outcome cloud.InstanceState
	// TerminateAfter is the number of describes that report shutting-down
	// after termination is requested.
	TerminateAfter int
}

// Call is one entry of the call log.
type Call struct {
	Op  string
	ID  string
	At  time.Time
	Err error
}

type object struct {
	kind    cloud.Kind
	id      string
	tags    map[string]string
	network string // owning or attached network

	// instances
	subnet   string
	groups   []string
	state    cloud.InstanceState
	describe int // describes since launch or since termination
	public   string
	private  string
	publicIP bool

	// route tables
	associations map[string]string // association ID -> subnet ID
	routes       map[string]string // destination -> gateway ID

	// security groups
	ingress []cloud.Rule
	egress  []cloud.Rule
}

type fault struct {
	from, to int // call numbers, to == 0 means unbounded
	err      error
}

// Provider is a simulated cloud implementing cloud.Provider and cloud.Discoverer.
// It is safe for concurrent use.
type Provider struct {
	mu      sync.Mutex
	opts    Options
	seq     int
	objects map[string]*object
	order   []string
	counts  map[string]int
	faults  map[string][]fault
	calls   []Call
}

var (
	_ cloud.Provider   = (*Provider)(nil)
	_ cloud.Discoverer = (*Provider)(nil)
)

// New returns an empty simulated cloud where instances run on the first describe.
func New() *Provider {
	return NewWithOptions(Options{})
}

// NewWithOptions returns an empty simulated cloud.
func NewWithOptions(opts Options) *Provider {
	if opts.Outcome == "" {
		opts.Outcome = cloud.InstanceRunning
	}
	return &Provider{
		opts:    opts,
		objects: make(map[string]*object),
		counts:  make(map[string]int),
		faults:  make(map[string][]fault),
	}
}

// Fail makes every subsequent call to op fail with err.
func (p *Provider) Fail(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults[op] = append(p.faults[op], fault{from: p.counts[op] + 1, err: err})
}

// FailNth makes the nth call (1-based, counted from the start) to op fail with err.
func (p *Provider) FailNth(op string, n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.faults[op] = append(p.faults[op], fault{from: n, to: n, err: err})
}

// FailTimes makes the next n calls to op fail with err.
func (p *Provider) FailTimes(op string, n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	next := p.counts[op] + 1
	p.faults[op] = append(p.faults[op], fault{from: next, to: next + n - 1, err: err})
}

// Calls returns a copy of the call log.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.calls)
}

// CallsTo returns the logged calls of one operation.
func (p *Provider) CallsTo(op string) []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Call
	for _, c := range p.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Exists reports whether id is a live resource. Terminated instances do not count.
func (p *Provider) Exists(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	obj, ok := p.objects[id]
	return ok && !(obj.kind == cloud.KindInstance && obj.state == cloud.InstanceTerminated)
}

// Live returns the IDs of all live resources in creation order.
func (p *Provider) Live() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, id := range p.order {
		obj := p.objects[id]
		if obj.kind == cloud.KindInstance && obj.state == cloud.InstanceTerminated {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Rules returns the ingress and egress rules of a security group.
func (p *Provider) Rules(groupID string) (ingress, egress []cloud.Rule) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if obj, ok := p.objects[groupID]; ok {
		return slices.Clone(obj.ingress), slices.Clone(obj.egress)
	}
	return nil, nil
}

// Associations returns the subnets explicitly associated with a route table.
func (p *Provider) Associations(routeTableID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	obj, ok := p.objects[routeTableID]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Values(obj.associations))
}

// SetInstanceState forces the state of an instance.
func (p *Provider) SetInstanceState(id string, state cloud.InstanceState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	obj, err := p.get(cloud.KindInstance, id)
	if err != nil {
		return err
	}
	obj.state = state
	obj.describe = 0
	return nil
}

// begin counts the call, logs it and returns an injected fault, if any.
// Must be called with p.mu held.
func (p *Provider) begin(op, id string) error {
	p.counts[op]++
	n := p.counts[op]
	var err error
	for _, f := range p.faults[op] {
		if n >= f.from && (f.to == 0 || n <= f.to) {
			err = f.err
			break
		}
	}
	p.calls = append(p.calls, Call{Op: op, ID: id, At: time.Now(), Err: err})
	return err
}

// finish records the outcome of the last logged call.
func (p *Provider) finish(err error) error {
	if err != nil && len(p.calls) > 0 {
		p.calls[len(p.calls)-1].Err = err
	}
	return err
}

func (p *Provider) nextID(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s-%08x", prefix, p.seq)
}

func (p *Provider) add(obj *object) string {
	p.objects[obj.id] = obj
	p.order = append(p.order, obj.id)
	return obj.id
}

func (p *Provider) remove(id string) {
	delete(p.objects, id)
	p.order = slices.DeleteFunc(p.order, func(o string) bool { return o == id })
}

func (p *Provider) get(kind cloud.Kind, id string) (*object, error) {
	obj, ok := p.objects[id]
	if !ok || obj.kind != kind {
		return nil, fmt.Errorf("%s %s: %w", kind, id, cloud.ErrNotFound)
	}
	return obj, nil
}

func (p *Provider) dependents(match func(*object) bool) []string {
	var out []string
	for _, id := range p.order {
		obj := p.objects[id]
		if obj.kind == cloud.KindInstance && obj.state == cloud.InstanceTerminated {
			continue
		}
		if match(obj) {
			out = append(out, id)
		}
	}
	return out
}

func violation(kind cloud.Kind, id string, deps []string) error {
	return fmt.Errorf("%s %s has dependencies %v: %w", kind, id, deps, cloud.ErrDependencyViolation)
}

func (p *Provider) CreateNetwork(ctx context.Context, cidrBlock string, tags map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpCreateNetwork, ""); err != nil {
		return "", err
	}
	id := p.add(&object{kind: cloud.KindNetwork, id: p.nextID("vpc"), tags: maps.Clone(tags)})
	p.calls[len(p.calls)-1].ID = id
	return id, nil
}

func (p *Provider) DeleteNetwork(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpDeleteNetwork, id); err != nil {
		return err
	}
	if _, err := p.get(cloud.KindNetwork, id); err != nil {
		return p.finish(err)
	}
	if deps := p.dependents(func(o *object) bool { return o.network == id }); len(deps) > 0 {
		return p.finish(violation(cloud.KindNetwork, id, deps))
	}
	p.remove(id)
	return nil
}

func (p *Provider) CreateSubnet(ctx context.Context, spec cloud.SubnetSpec) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpCreateSubnet, ""); err != nil {
		return "", err
	}
	if _, err := p.get(cloud.KindNetwork, spec.NetworkID); err != nil {
		return "", p.finish(err)
	}
	id := p.add(&object{kind: cloud.KindSubnet, id: p.nextID("subnet"), tags: maps.Clone(spec.Tags), network: spec.NetworkID})
	p.calls[len(p.calls)-1].ID = id
	return id, nil
}

func (p *Provider) DeleteSubnet(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpDeleteSubnet, id); err != nil {
		return err
	}
	if _, err := p.get(cloud.KindSubnet, id); err != nil {
		return p.finish(err)
	}
	if deps := p.dependents(func(o *object) bool { return o.kind == cloud.KindInstance && o.subnet == id }); len(deps) > 0 {
		return p.finish(violation(cloud.KindSubnet, id, deps))
	}
	for _, obj := range p.objects {
		for assoc, subnet := range obj.associations {
			if subnet == id {
				delete(obj.associations, assoc)
			}
		}
	}
	p.remove(id)
	return nil
}

func (p *Provider) CreateGateway(ctx context.Context, tags map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpCreateGateway, ""); err != nil {
		return "", err
	}
	id := p.add(&object{kind: cloud.KindGateway, id: p.nextID("igw"), tags: maps.Clone(tags)})
	p.calls[len(p.calls)-1].ID = id
	return id, nil
}

func (p *Provider) AttachGateway(ctx context.Context, gatewayID, networkID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpAttachGateway, gatewayID); err != nil {
		return err
	}
	gw, err := p.get(cloud.KindGateway, gatewayID)
	if err != nil {
		return p.finish(err)
	}
	if _, err := p.get(cloud.KindNetwork, networkID); err != nil {
		return p.finish(err)
	}
	if gw.network != "" {
		return p.finish(fmt.Errorf("gateway %s already attached to %s", gatewayID, gw.network))
	}
	gw.network = networkID
	return nil
}

func (p *Provider) DetachGateway(ctx context.Context, gatewayID, networkID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpDetachGateway, gatewayID); err != nil {
		return err
	}
	gw, err := p.get(cloud.KindGateway, gatewayID)
	if err != nil {
		return p.finish(err)
	}
	if gw.network != networkID {
		return p.finish(fmt.Errorf("gateway %s is not attached to %s: %w", gatewayID, networkID, cloud.ErrNotFound))
	}
	gw.network = ""
	return nil
}

func (p *Provider) DeleteGateway(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpDeleteGateway, id); err != nil {
		return err
	}
	gw, err := p.get(cloud.KindGateway, id)
	if err != nil {
		return p.finish(err)
	}
	if gw.network != "" {
		return p.finish(violation(cloud.KindGateway, id, []string{gw.network}))
	}
	p.remove(id)
	return nil
}

func (p *Provider) CreateRouteTable(ctx context.Context, networkID string, tags map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpCreateRouteTable, ""); err != nil {
		return "", err
	}
	if _, err := p.get(cloud.KindNetwork, networkID); err != nil {
		return "", p.finish(err)
	}
	id := p.add(&object{
		kind:         cloud.KindRouteTable,
		id:           p.nextID("rtb"),
		tags:         maps.Clone(tags),
		network:      networkID,
		associations: make(map[string]string),
		routes:       make(map[string]string),
	})
	p.calls[len(p.calls)-1].ID = id
	return id, nil
}

func (p *Provider) CreateRoute(ctx context.Context, routeTableID, destinationCidr, gatewayID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpCreateRoute, routeTableID); err != nil {
		return err
	}
	rt, err := p.get(cloud.KindRouteTable, routeTableID)
	if err != nil {
		return p.finish(err)
	}
	if _, err := p.get(cloud.KindGateway, gatewayID); err != nil {
		return p.finish(err)
	}
	rt.routes[destinationCidr] = gatewayID
	return nil
}

func (p *Provider) AssociateRouteTable(ctx context.Context, routeTableID, subnetID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpAssociateRouteTable, routeTableID); err != nil {
		return "", err
	}
	rt, err := p.get(cloud.KindRouteTable, routeTableID)
	if err != nil {
		return "", p.finish(err)
	}
	if _, err := p.get(cloud.KindSubnet, subnetID); err != nil {
		return "", p.finish(err)
	}
	assoc := p.nextID("rtbassoc")
	rt.associations[assoc] = subnetID
	return assoc, nil
}

// DeleteRouteTable drops explicit associations before deleting the table.
func (p *Provider) DeleteRouteTable(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpDeleteRouteTable, id); err != nil {
		return err
	}
	if _, err := p.get(cloud.KindRouteTable, id); err != nil {
		return p.finish(err)
	}
	p.remove(id)
	return nil
}

func (p *Provider) CreateSecurityGroup(ctx context.Context, spec cloud.SecurityGroupSpec) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpCreateSecurityGroup, ""); err != nil {
		return "", err
	}
	if _, err := p.get(cloud.KindNetwork, spec.NetworkID); err != nil {
		return "", p.finish(err)
	}
	id := p.add(&object{kind: cloud.KindSecurityGroup, id: p.nextID("sg"), tags: maps.Clone(spec.Tags), network: spec.NetworkID})
	p.calls[len(p.calls)-1].ID = id
	return id, nil
}

func (p *Provider) AuthorizeIngress(ctx context.Context, groupID string, rule cloud.Rule) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpAuthorizeIngress, groupID); err != nil {
		return err
	}
	sg, err := p.get(cloud.KindSecurityGroup, groupID)
	if err != nil {
		return p.finish(err)
	}
	sg.ingress = append(sg.ingress, rule)
	return nil
}

func (p *Provider) AuthorizeEgress(ctx context.Context, groupID string, rule cloud.Rule) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpAuthorizeEgress, groupID); err != nil {
		return err
	}
	sg, err := p.get(cloud.KindSecurityGroup, groupID)
	if err != nil {
		return p.finish(err)
	}
	sg.egress = append(sg.egress, rule)
	return nil
}

func (p *Provider) DeleteSecurityGroup(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpDeleteSecurityGroup, id); err != nil {
		return err
	}
	if _, err := p.get(cloud.KindSecurityGroup, id); err != nil {
		return p.finish(err)
	}
	if deps := p.dependents(func(o *object) bool { return o.kind == cloud.KindInstance && slices.Contains(o.groups, id) }); len(deps) > 0 {
		return p.finish(violation(cloud.KindSecurityGroup, id, deps))
	}
	p.remove(id)
	return nil
}

func (p *Provider) CreateInstance(ctx context.Context, spec cloud.InstanceSpec) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpCreateInstance, ""); err != nil {
		return "", err
	}
	subnet, err := p.get(cloud.KindSubnet, spec.SubnetID)
	if err != nil {
		return "", p.finish(err)
	}
	for _, g := range spec.SecurityGroupIDs {
		if _, err := p.get(cloud.KindSecurityGroup, g); err != nil {
			return "", p.finish(err)
		}
	}
	obj := &object{
		kind:     cloud.KindInstance,
		id:       p.nextID("i"),
		tags:     maps.Clone(spec.Tags),
		network:  subnet.network,
		subnet:   spec.SubnetID,
		groups:   slices.Clone(spec.SecurityGroupIDs),
		state:    cloud.InstancePending,
		publicIP: spec.AssociatePublicIP,
		private:  fmt.Sprintf("10.0.1.%d", 10+p.seq%240),
	}
	id := p.add(obj)
	p.calls[len(p.calls)-1].ID = id
	return id, nil
}

func (p *Provider) DescribeInstance(ctx context.Context, id string) (*cloud.Instance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpDescribeInstance, id); err != nil {
		return nil, err
	}
	obj, err := p.get(cloud.KindInstance, id)
	if err != nil {
		return nil, p.finish(err)
	}

	obj.describe++
	switch obj.state {
	case cloud.InstancePending:
		if obj.describe <= p.opts.HiddenFor {
			return nil, p.finish(fmt.Errorf("instance %s: %w", id, cloud.ErrNotFound))
		}
		if obj.describe > p.opts.HiddenFor+p.opts.ReadyAfter {
			obj.state = p.opts.Outcome
			if obj.state == cloud.InstanceRunning && obj.publicIP {
				obj.public = fmt.Sprintf("203.0.113.%d", 1+p.seq%254)
			}
		}
	case cloud.InstanceShuttingDown:
		if obj.describe > p.opts.TerminateAfter {
			obj.state = cloud.InstanceTerminated
			obj.public = ""
		}
	}

	return &cloud.Instance{
		ID:        obj.id,
		State:     obj.state,
		PublicIP:  obj.public,
		PrivateIP: obj.private,
	}, nil
}

func (p *Provider) TerminateInstance(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpTerminateInstance, id); err != nil {
		return err
	}
	obj, err := p.get(cloud.KindInstance, id)
	if err != nil {
		return p.finish(err)
	}
	if obj.state == cloud.InstanceTerminated || obj.state == cloud.InstanceShuttingDown {
		return nil
	}
	obj.state = cloud.InstanceShuttingDown
	obj.describe = 0
	return nil
}

// Discover lists live resources tagged with the stack, in creation order.
func (p *Provider) Discover(ctx context.Context, stack string) ([]cloud.Resource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []cloud.Resource
	for _, id := range p.order {
		obj := p.objects[id]
		if obj.tags[cloud.TagStack] != stack {
			continue
		}
		if obj.kind == cloud.KindInstance && obj.state == cloud.InstanceTerminated {
			continue
		}
		var attrs map[string]string
		if obj.network != "" && obj.kind != cloud.KindInstance {
			attrs = map[string]string{cloud.AttrNetworkID: obj.network}
		}
		out = append(out, cloud.NewResource(obj.kind, obj.id, obj.tags[cloud.TagName], obj.tags, attrs))
	}
	return out, nil
}

// ResolveImage returns a stable fake image ID for parameter.
func (p *Provider) ResolveImage(ctx context.Context, parameter string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.begin(OpResolveImage, parameter); err != nil {
		return "", err
	}
	h := fnv.New64a()
	h.Write([]byte(parameter))
	return fmt.Sprintf("ami-%016x", h.Sum64()), nil
}
