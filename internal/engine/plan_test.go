package engine

import (
	"context"
	"testing"
	"time"

	"github.com/picklr-io/stackup/internal/ir"
	"github.com/picklr-io/stackup/pkg/cloud"
	"github.com/picklr-io/stackup/providers/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *ir.Config {
	cfg := &ir.Config{Provider: "null"}
	cfg.ApplyDefaults()
	return cfg
}

func testPlan() *Plan {
	return BuildPlan(testConfig(), []byte("#!/bin/bash\necho hello\n"))
}

func newTestEngine(p cloud.Provider) *Engine {
	e := NewEngine(p)
	e.Readiness = PollBudget{Interval: time.Millisecond, MaxAttempts: 5}
	e.Termination = PollBudget{Interval: time.Millisecond, MaxAttempts: 5}
	e.Retry = &RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	return e
}

func kinds(resources []cloud.Resource) []cloud.Kind {
	out := make([]cloud.Kind, 0, len(resources))
	for _, r := range resources {
		out = append(out, r.Kind)
	}
	return out
}

func TestBuildPlan_Order(t *testing.T) {
	plan := testPlan()

	dag, err := BuildDAG(plan.Steps)
	require.NoError(t, err)

	assert.Equal(t, []string{
		StepNetwork,
		StepSubnet,
		StepGateway,
		StepGatewayAttachment,
		StepRouteTable,
		StepDefaultRoute,
		StepRouteTableAssociation,
		StepSSHGroup,
		StepSSHIngress,
		StepHTTPGroup,
		StepHTTPRules,
		StepInstance,
	}, dag.CreationOrder())

	assert.Equal(t, "wordpress", plan.Stack)
	assert.Equal(t, "wordpress", plan.Tags[cloud.TagStack])
}

func TestBuildPlan_InstanceDependsOnEverything(t *testing.T) {
	dag, err := BuildDAG(testPlan().Steps)
	require.NoError(t, err)

	deps := dag.Dependencies(StepInstance)
	for _, want := range []string{StepSubnet, StepSSHGroup, StepHTTPGroup, StepDefaultRoute, StepRouteTableAssociation} {
		assert.Contains(t, deps, want)
	}
}

func TestBuildPlan_WiresConfig(t *testing.T) {
	p := null.New()
	e := newTestEngine(p)

	cfg := testConfig()
	cfg.Network.SSHCidr = "198.51.100.0/24"
	cfg.Tags = map[string]string{"team": "web"}

	run := e.Execute(context.Background(), BuildPlan(cfg, nil))
	require.True(t, run.Succeeded(), "run failed: %v", run.Err)

	byStep := make(map[string]cloud.Resource)
	for _, res := range run.Created {
		byStep[res.Name] = res
	}

	network := byStep[StepNetwork]
	assert.Equal(t, "dockerVPC", network.Tags[cloud.TagName])
	assert.Equal(t, "web", network.Tags["team"])
	assert.Equal(t, run.ID, network.Tags[cloud.TagRun])

	assert.Equal(t, network.ID, byStep[StepGateway].Attr(cloud.AttrNetworkID))
	assert.Equal(t, network.ID, byStep[StepSubnet].Attr(cloud.AttrNetworkID))

	ingress, _ := p.Rules(byStep[StepSSHGroup].ID)
	assert.Equal(t, []cloud.Rule{{Protocol: "tcp", FromPort: 22, ToPort: 22, CidrIP: "198.51.100.0/24"}}, ingress)

	ingress, egress := p.Rules(byStep[StepHTTPGroup].ID)
	http := cloud.Rule{Protocol: "tcp", FromPort: 80, ToPort: 80, CidrIP: "0.0.0.0/0"}
	assert.Equal(t, []cloud.Rule{http}, ingress)
	assert.Equal(t, []cloud.Rule{http}, egress)

	assert.Equal(t, []string{byStep[StepSubnet].ID}, p.Associations(byStep[StepRouteTable].ID))
}

func TestStepContext_Ref(t *testing.T) {
	sc := &StepContext{step: "subnet", refs: map[string]string{"network": "vpc-1"}}

	id, err := sc.Ref("network")
	require.NoError(t, err)
	assert.Equal(t, "vpc-1", id)

	_, err = sc.Ref("gateway")
	assert.ErrorContains(t, err, `step subnet has no resource from dependency "gateway"`)
}
