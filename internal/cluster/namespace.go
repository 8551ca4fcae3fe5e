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
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/client-go/kubernetes"

	"github.com/appforge/appforge/internal/observability/logger"
)

const (
	quotaObjectName  = "workspace-quota"
	policyObjectName = "default-deny"
)

// Provisioner creates and destroys the isolated namespace backing a
// workspace, attaching quota and network isolation.
type Provisioner struct {
	clientset kubernetes.Interface
}

// NewProvisioner creates a new namespace provisioner
func NewProvisioner(clientset kubernetes.Interface) *Provisioner {
	return &Provisioner{clientset: clientset}
}

// Provision ensures the namespace exists with the given labels, then applies
// the quota object and the default-deny network policy. The namespace itself
// is the load-bearing invariant: quota and policy failures are logged and do
// not fail the call, so a partial apply can be reconciled on a later run.
// Every step is idempotent.
func (p *Provisioner) Provision(ctx context.Context, namespace string, labels map[string]string, quota ResourceBundle) error {
	if err := p.ensureNamespace(ctx, namespace, labels); err != nil {
		return fmt.Errorf("failed to ensure namespace %s: %w", namespace, err)
	}

	if err := p.ensureQuota(ctx, namespace, quota); err != nil {
		slog.WarnContext(ctx, "quota apply failed, will reconcile on next provision",
			logger.Namespace(namespace), logger.Error(err))
	}

	if err := p.ensureNetworkPolicy(ctx, namespace); err != nil {
		slog.WarnContext(ctx, "network policy apply failed, will reconcile on next provision",
			logger.Namespace(namespace), logger.Error(err))
	}

	return nil
}

// Deprovision deletes the namespace. The cluster cascades deletion of every
// object inside it, which is the primary cleanup mechanism; per-object
// deletion beforehand is a best-effort optimization only.
func (p *Provisioner) Deprovision(ctx context.Context, namespace string) error {
	err := p.clientset.CoreV1().Namespaces().Delete(ctx, namespace, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete namespace %s: %w", namespace, err)
	}
	return nil
}

func (p *Provisioner) ensureNamespace(ctx context.Context, namespace string, labels map[string]string) error {
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   namespace,
			Labels: labels,
		},
	}
	_, err := p.clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}

// The simplified {cpu, memory, storage} bundle maps to requests and limits
// for cpu/memory, and requests only for storage.
func (p *Provisioner) ensureQuota(ctx context.Context, namespace string, bundle ResourceBundle) error {
	hard := corev1.ResourceList{}
	if bundle.CPU != "" {
		cpu, err := resource.ParseQuantity(bundle.CPU)
		if err != nil {
			return fmt.Errorf("invalid cpu quota %q: %w", bundle.CPU, err)
		}
		hard[corev1.ResourceRequestsCPU] = cpu
		hard[corev1.ResourceLimitsCPU] = cpu
	}
	if bundle.Memory != "" {
		mem, err := resource.ParseQuantity(bundle.Memory)
		if err != nil {
			return fmt.Errorf("invalid memory quota %q: %w", bundle.Memory, err)
		}
		hard[corev1.ResourceRequestsMemory] = mem
		hard[corev1.ResourceLimitsMemory] = mem
	}
	if bundle.Storage != "" {
		storage, err := resource.ParseQuantity(bundle.Storage)
		if err != nil {
			return fmt.Errorf("invalid storage quota %q: %w", bundle.Storage, err)
		}
		hard[corev1.ResourceRequestsStorage] = storage
	}
	if len(hard) == 0 {
		return nil
	}

	quota := &corev1.ResourceQuota{
		ObjectMeta: metav1.ObjectMeta{
			Name:      quotaObjectName,
			Namespace: namespace,
		},
		Spec: corev1.ResourceQuotaSpec{Hard: hard},
	}

	_, err := p.clientset.CoreV1().ResourceQuotas(namespace).Create(ctx, quota, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		_, err = p.clientset.CoreV1().ResourceQuotas(namespace).Update(ctx, quota, metav1.UpdateOptions{})
	}
	return err
}

// Default-deny with exceptions: traffic within the namespace stays open so
// dependency services are reachable, and DNS egress to kube-system is
// allowed. Everything else is denied.
func (p *Provisioner) ensureNetworkPolicy(ctx context.Context, namespace string) error {
	protoUDP := corev1.ProtocolUDP
	dnsPort := intstr.FromInt32(53)

	policy := &networkingv1.NetworkPolicy{
		ObjectMeta: metav1.ObjectMeta{
			Name:      policyObjectName,
			Namespace: namespace,
		},
		Spec: networkingv1.NetworkPolicySpec{
			PodSelector: metav1.LabelSelector{},
			PolicyTypes: []networkingv1.PolicyType{
				networkingv1.PolicyTypeIngress,
				networkingv1.PolicyTypeEgress,
			},
			Ingress: []networkingv1.NetworkPolicyIngressRule{
				{
					From: []networkingv1.NetworkPolicyPeer{
						{PodSelector: &metav1.LabelSelector{}},
					},
				},
			},
			Egress: []networkingv1.NetworkPolicyEgressRule{
				{
					To: []networkingv1.NetworkPolicyPeer{
						{PodSelector: &metav1.LabelSelector{}},
					},
				},
				{
					To: []networkingv1.NetworkPolicyPeer{
						{
							NamespaceSelector: &metav1.LabelSelector{
								MatchLabels: map[string]string{"kubernetes.io/metadata.name": "kube-system"},
							},
						},
					},
					Ports: []networkingv1.NetworkPolicyPort{
						{Protocol: &protoUDP, Port: &dnsPort},
					},
				},
			},
		},
	}

	_, err := p.clientset.NetworkingV1().NetworkPolicies(namespace).Create(ctx, policy, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		_, err = p.clientset.NetworkingV1().NetworkPolicies(namespace).Update(ctx, policy, metav1.UpdateOptions{})
	}
	return err
}
