// Copyright 2026 The AppForge Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cluster

import (
	"context"
	"fmt"
	"sort"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"
)

// Release is a rendered recipe template ready to be applied: one workload
// plus one service, with credentials injected from the deployment's secret.
type Release struct {
	Name       string
	Namespace  string
	Image      string
	Port       int
	Env        map[string]string
	SecretRef  string
	Resources  ResourceBundle
	HealthPath string
	Replicas   int32
	Labels     map[string]string
}

// ReleaseManager issues imperative install/upgrade/uninstall operations
// against the cluster and reads back workload status. A second install of an
// existing release is treated as an upgrade, never a duplicate create.
type ReleaseManager interface {
	Install(ctx context.Context, rel Release) error
	Uninstall(ctx context.Context, namespace, name string) error
	WaitReady(ctx context.Context, namespace, name string, timeout time.Duration) error
}

// KubeReleaseManager implements ReleaseManager directly with the clientset.
type KubeReleaseManager struct {
	clientset    kubernetes.Interface
	pollInterval time.Duration
}

// NewReleaseManager creates a new release manager
func NewReleaseManager(clientset kubernetes.Interface) *KubeReleaseManager {
	return &KubeReleaseManager{
		clientset:    clientset,
		pollInterval: 3 * time.Second,
	}
}

// Install applies the release's workload and service. Both applies are
// create-or-update so retries and upgrades go through the same path.
func (m *KubeReleaseManager) Install(ctx context.Context, rel Release) error {
	deploy := m.renderWorkload(rel)
	_, err := m.clientset.AppsV1().Deployments(rel.Namespace).Create(ctx, deploy, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		_, err = m.clientset.AppsV1().Deployments(rel.Namespace).Update(ctx, deploy, metav1.UpdateOptions{})
	}
	if err != nil {
		return fmt.Errorf("failed to apply workload %s/%s: %w", rel.Namespace, rel.Name, err)
	}

	svc := m.renderService(rel)
	_, err = m.clientset.CoreV1().Services(rel.Namespace).Create(ctx, svc, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		// Service ClusterIP is immutable; patch only the mutable bits.
		existing, getErr := m.clientset.CoreV1().Services(rel.Namespace).Get(ctx, rel.Name, metav1.GetOptions{})
		if getErr != nil {
			return fmt.Errorf("failed to read service %s/%s: %w", rel.Namespace, rel.Name, getErr)
		}
		existing.Spec.Ports = svc.Spec.Ports
		existing.Spec.Selector = svc.Spec.Selector
		existing.Labels = svc.Labels
		_, err = m.clientset.CoreV1().Services(rel.Namespace).Update(ctx, existing, metav1.UpdateOptions{})
	}
	if err != nil {
		return fmt.Errorf("failed to apply service %s/%s: %w", rel.Namespace, rel.Name, err)
	}
	return nil
}

// Uninstall deletes the release's tracked objects. Missing objects are fine;
// namespace deletion may already have cascaded.
func (m *KubeReleaseManager) Uninstall(ctx context.Context, namespace, name string) error {
	if err := m.clientset.AppsV1().Deployments(namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete workload %s/%s: %w", namespace, name, err)
	}
	if err := m.clientset.CoreV1().Services(namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete service %s/%s: %w", namespace, name, err)
	}
	return nil
}

// WaitReady polls the workload until every requested replica reports ready.
// On timeout it surfaces the most specific pod-level failure it observed,
// e.g. an image pull error, so the caller can classify it.
func (m *KubeReleaseManager) WaitReady(ctx context.Context, namespace, name string, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	var lastReason string
	for {
		deploy, err := m.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return fmt.Errorf("failed to read workload %s/%s: %w", namespace, name, err)
		}
		want := int32(1)
		if deploy.Spec.Replicas != nil {
			want = *deploy.Spec.Replicas
		}
		if deploy.Status.ReadyReplicas >= want {
			return nil
		}
		if reason := m.podFailureReason(ctx, namespace, name); reason != "" {
			lastReason = reason
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if lastReason != "" {
				return fmt.Errorf("release %s/%s not ready: %s", namespace, name, lastReason)
			}
			return fmt.Errorf("release %s/%s not ready after %s", namespace, name, timeout)
		case <-ticker.C:
		}
	}
}

// podFailureReason inspects pod container statuses for terminal-looking
// waiting reasons (ImagePullBackOff, CrashLoopBackOff, ...).
func (m *KubeReleaseManager) podFailureReason(ctx context.Context, namespace, name string) string {
	pods, err := m.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "app=" + name,
	})
	if err != nil {
		return ""
	}
	for _, pod := range pods.Items {
		for _, cs := range pod.Status.ContainerStatuses {
			if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" && cs.State.Waiting.Reason != "ContainerCreating" {
				return fmt.Sprintf("%s: %s", cs.State.Waiting.Reason, cs.State.Waiting.Message)
			}
		}
	}
	return ""
}

func (m *KubeReleaseManager) renderWorkload(rel Release) *appsv1.Deployment {
	replicas := rel.Replicas
	if replicas <= 0 {
		replicas = 1
	}

	labels := map[string]string{"app": rel.Name}
	for k, v := range rel.Labels {
		labels[k] = v
	}

	container := corev1.Container{
		Name:  rel.Name,
		Image: rel.Image,
		Ports: []corev1.ContainerPort{{ContainerPort: int32(rel.Port)}},
		Env:   renderEnvVars(rel.Env),
	}
	if rel.SecretRef != "" {
		container.EnvFrom = []corev1.EnvFromSource{
			{
				SecretRef: &corev1.SecretEnvSource{
					LocalObjectReference: corev1.LocalObjectReference{Name: rel.SecretRef},
				},
			},
		}
	}
	if limits := renderResources(rel.Resources); len(limits) > 0 {
		container.Resources = corev1.ResourceRequirements{
			Requests: limits,
			Limits:   limits,
		}
	}
	if rel.HealthPath != "" {
		probe := &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				HTTPGet: &corev1.HTTPGetAction{
					Path: rel.HealthPath,
					Port: intstr.FromInt32(int32(rel.Port)),
				},
			},
			InitialDelaySeconds: 10,
			PeriodSeconds:       10,
		}
		container.ReadinessProbe = probe
		container.LivenessProbe = probe
	}

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      rel.Name,
			Namespace: rel.Namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{"app": rel.Name},
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{container},
				},
			},
		},
	}
}

func (m *KubeReleaseManager) renderService(rel Release) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      rel.Name,
			Namespace: rel.Namespace,
			Labels:    map[string]string{"app": rel.Name},
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": rel.Name},
			Ports: []corev1.ServicePort{
				{
					Port:       int32(rel.Port),
					TargetPort: intstr.FromInt32(int32(rel.Port)),
				},
			},
		},
	}
}

func renderEnvVars(env map[string]string) []corev1.EnvVar {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vars := make([]corev1.EnvVar, 0, len(env))
	for _, k := range keys {
		vars = append(vars, corev1.EnvVar{Name: k, Value: env[k]})
	}
	return vars
}

func renderResources(bundle ResourceBundle) corev1.ResourceList {
	list := corev1.ResourceList{}
	if bundle.CPU != "" {
		if q, err := resource.ParseQuantity(bundle.CPU); err == nil {
			list[corev1.ResourceCPU] = q
		}
	}
	if bundle.Memory != "" {
		if q, err := resource.ParseQuantity(bundle.Memory); err == nil {
			list[corev1.ResourceMemory] = q
		}
	}
	return list
}
