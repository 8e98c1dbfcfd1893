package elastic

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gotest.tools/assert"
	k8sV1 "k8s.io/api/core/v1"
)

func TestBuildPodFromProfile(t *testing.T) {
	req := CreateAgentRequest{
		JobID:           "42",
		AutoRegisterKey: "secret",
		Environment:     "production",
		Image:           "gocd/agent:latest",
		MaxMemory:       "2Gi",
		MaxCPU:          "500m",
		EnvironmentVariables: map[string]string{
			"B_VAR": "b",
			"A_VAR": "a",
		},
	}
	policy := testPolicy(5, 10*time.Minute)

	pod, err := podSpecBuilder{}.buildPod("k8s-ea-test", req, policy)
	require.NoError(t, err)

	assert.Equal(t, pod.Name, "k8s-ea-test")
	assert.Equal(t, pod.Namespace, "default")
	assert.Equal(t, pod.Labels[elasticAgentLabelKey], elasticAgentLabelValue)
	assert.Equal(t, pod.Labels[jobIDLabelKey], "42")
	assert.Equal(t, pod.Spec.RestartPolicy, k8sV1.RestartPolicyNever)

	require.Equal(t, len(pod.Spec.Containers), 1)
	container := pod.Spec.Containers[0]
	assert.Equal(t, container.Image, "gocd/agent:latest")
	assert.Equal(t, container.Resources.Limits.Memory().String(), "2Gi")
	assert.Equal(t, container.Resources.Limits.Cpu().String(), "500m")

	env := map[string]string{}
	for _, e := range container.Env {
		env[e.Name] = e.Value
	}
	assert.Equal(t, env["GO_EA_AUTO_REGISTER_KEY"], "secret")
	assert.Equal(t, env["GO_EA_AUTO_REGISTER_ENVIRONMENT"], "production")
	assert.Equal(t, env["GO_EA_AUTO_REGISTER_ELASTIC_AGENT_ID"], "k8s-ea-test")
	assert.Equal(t, env["A_VAR"], "a")
	assert.Equal(t, env["B_VAR"], "b")
}

func TestBuildPodIsDeterministic(t *testing.T) {
	req := CreateAgentRequest{
		JobID: "42",
		Image: "gocd/agent:latest",
		EnvironmentVariables: map[string]string{
			"Z": "z", "Y": "y", "X": "x", "W": "w",
		},
	}
	policy := testPolicy(5, 10*time.Minute)

	first, err := podSpecBuilder{}.buildPod("k8s-ea-test", req, policy)
	require.NoError(t, err)
	second, err := podSpecBuilder{}.buildPod("k8s-ea-test", req, policy)
	require.NoError(t, err)

	assert.Equal(t, reflect.DeepEqual(first, second), true)
}

func TestBuildPodFromTemplate(t *testing.T) {
	req := CreateAgentRequest{
		JobID:           "42",
		AutoRegisterKey: "secret",
		PodTemplate: `
apiVersion: v1
kind: Pod
metadata:
  labels:
    app: custom-agent
spec:
  containers:
  - name: agent
    image: custom/agent:v2
  - name: sidecar
    image: custom/sidecar:v1
`,
	}
	policy := testPolicy(5, 10*time.Minute)

	pod, err := podSpecBuilder{}.buildPod("k8s-ea-test", req, policy)
	require.NoError(t, err)

	assert.Equal(t, pod.Name, "k8s-ea-test", "the generated name wins over the template")
	assert.Equal(t, pod.Namespace, "default")
	assert.Equal(t, pod.Labels["app"], "custom-agent", "template labels are preserved")
	assert.Equal(t, pod.Labels[elasticAgentLabelKey], elasticAgentLabelValue)

	require.Equal(t, len(pod.Spec.Containers), 2)
	for _, container := range pod.Spec.Containers {
		env := map[string]string{}
		for _, e := range container.Env {
			env[e.Name] = e.Value
		}
		assert.Equal(t, env["GO_EA_AUTO_REGISTER_KEY"], "secret",
			"every container gets the agent environment")
	}
}

func TestBuildPodRejectsBadInput(t *testing.T) {
	policy := testPolicy(5, 10*time.Minute)

	_, err := podSpecBuilder{}.buildPod("k8s-ea-test", CreateAgentRequest{
		PodTemplate: "{not yaml",
	}, policy)
	require.Error(t, err)

	_, err = podSpecBuilder{}.buildPod("k8s-ea-test", CreateAgentRequest{
		PodTemplate: "metadata:\n  name: empty\n",
	}, policy)
	require.Error(t, err, "a template without containers is rejected")

	_, err = podSpecBuilder{}.buildPod("k8s-ea-test", CreateAgentRequest{
		Image:     "gocd/agent:latest",
		MaxMemory: "lots",
	}, policy)
	require.Error(t, err)
}
