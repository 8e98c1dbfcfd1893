package elastic

import (
	"sort"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	k8sV1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
)

// specBuilder translates a creation request into a concrete pod spec. It is
// pure: the same request and policy always produce the same spec.
type specBuilder interface {
	buildPod(name string, req CreateAgentRequest, policy CapacityPolicy) (*k8sV1.Pod, error)
}

type podSpecBuilder struct{}

func (podSpecBuilder) buildPod(
	name string, req CreateAgentRequest, policy CapacityPolicy,
) (*k8sV1.Pod, error) {
	var pod k8sV1.Pod
	if req.PodTemplate != "" {
		if err := yaml.Unmarshal([]byte(req.PodTemplate), &pod); err != nil {
			return nil, errors.Wrap(err, "error parsing pod template yaml")
		}
		if len(pod.Spec.Containers) == 0 {
			return nil, errors.New("pod template has no containers")
		}
	} else {
		limits, err := resourceLimits(req)
		if err != nil {
			return nil, err
		}
		pod = k8sV1.Pod{
			Spec: k8sV1.PodSpec{
				Containers: []k8sV1.Container{{
					Name:      name,
					Image:     req.Image,
					Resources: k8sV1.ResourceRequirements{Limits: limits},
				}},
				RestartPolicy: k8sV1.RestartPolicyNever,
			},
		}
	}

	pod.ObjectMeta.Name = name
	pod.ObjectMeta.Namespace = policy.Namespace
	if pod.ObjectMeta.Labels == nil {
		pod.ObjectMeta.Labels = make(map[string]string)
	}
	pod.ObjectMeta.Labels[elasticAgentLabelKey] = elasticAgentLabelValue
	pod.ObjectMeta.Labels[jobIDLabelKey] = req.JobID

	env := agentEnvironment(name, req)
	for i := range pod.Spec.Containers {
		pod.Spec.Containers[i].Env = append(pod.Spec.Containers[i].Env, env...)
	}
	return &pod, nil
}

func resourceLimits(req CreateAgentRequest) (k8sV1.ResourceList, error) {
	limits := k8sV1.ResourceList{}
	if req.MaxMemory != "" {
		quantity, err := resource.ParseQuantity(req.MaxMemory)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid max memory %q", req.MaxMemory)
		}
		limits[k8sV1.ResourceMemory] = quantity
	}
	if req.MaxCPU != "" {
		quantity, err := resource.ParseQuantity(req.MaxCPU)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid max cpu %q", req.MaxCPU)
		}
		limits[k8sV1.ResourceCPU] = quantity
	}
	return limits, nil
}

// agentEnvironment builds the environment the agent needs to register itself
// with the scheduling server on startup.
func agentEnvironment(name string, req CreateAgentRequest) []k8sV1.EnvVar {
	env := []k8sV1.EnvVar{
		{Name: "GO_EA_AUTO_REGISTER_KEY", Value: req.AutoRegisterKey},
		{Name: "GO_EA_AUTO_REGISTER_ENVIRONMENT", Value: req.Environment},
		{Name: "GO_EA_AUTO_REGISTER_ELASTIC_AGENT_ID", Value: name},
		{Name: "GO_EA_AUTO_REGISTER_ELASTIC_PLUGIN_ID", Value: pluginID},
	}

	keys := make([]string, 0, len(req.EnvironmentVariables))
	for k := range req.EnvironmentVariables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k8sV1.EnvVar{Name: k, Value: req.EnvironmentVariables[k]})
	}
	return env
}
