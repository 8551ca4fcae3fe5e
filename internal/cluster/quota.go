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

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// ResourceBundle is a requested resource footprint in standard unit strings
// ("500m", "256Mi"). Empty dimensions are not checked.
type ResourceBundle struct {
	CPU     string `json:"cpu"`
	Memory  string `json:"memory"`
	Storage string `json:"storage"`
}

// Add returns the dimension-wise sum of two bundles. Used to admission-check
// a deployment together with the dependencies its install would create.
func (b ResourceBundle) Add(other ResourceBundle) (ResourceBundle, error) {
	sum := func(a, b string) (string, error) {
		if a == "" {
			return b, nil
		}
		if b == "" {
			return a, nil
		}
		qa, err := resource.ParseQuantity(a)
		if err != nil {
			return "", err
		}
		qb, err := resource.ParseQuantity(b)
		if err != nil {
			return "", err
		}
		qa.Add(qb)
		return qa.String(), nil
	}

	var out ResourceBundle
	var err error
	if out.CPU, err = sum(b.CPU, other.CPU); err != nil {
		return out, fmt.Errorf("cpu: %w", err)
	}
	if out.Memory, err = sum(b.Memory, other.Memory); err != nil {
		return out, fmt.Errorf("memory: %w", err)
	}
	if out.Storage, err = sum(b.Storage, other.Storage); err != nil {
		return out, fmt.Errorf("storage: %w", err)
	}
	return out, nil
}

// Decision is the outcome of an admission check. When Available is false,
// Reasons enumerates every dimension that would be exceeded.
type Decision struct {
	Available bool
	Reasons   []string
}

// QuotaGuard answers whether a requested resource bundle fits within a
// namespace's admission limits. It is an admission hint, not a cluster-side
// guarantee: two concurrent checks may race against the same shrinking
// budget, and the cluster's ResourceQuota enforcement is the final backstop.
type QuotaGuard struct {
	clientset kubernetes.Interface
}

// NewQuotaGuard creates a new quota guard
func NewQuotaGuard(clientset kubernetes.Interface) *QuotaGuard {
	return &QuotaGuard{clientset: clientset}
}

// The quota object tracks requests.* keys; those are the dimensions the
// simplified bundle maps onto.
var quotaDimensions = []struct {
	label    string
	hardKey  corev1.ResourceName
	request  func(ResourceBundle) string
}{
	{"cpu", corev1.ResourceRequestsCPU, func(b ResourceBundle) string { return b.CPU }},
	{"memory", corev1.ResourceRequestsMemory, func(b ResourceBundle) string { return b.Memory }},
	{"storage", corev1.ResourceRequestsStorage, func(b ResourceBundle) string { return b.Storage }},
}

// Check reads the namespace's hard limits and used totals and compares the
// request per dimension. A namespace without any ResourceQuota object is
// treated as unenforced: the request is always available (fail-open).
func (g *QuotaGuard) Check(ctx context.Context, namespace string, req ResourceBundle) (*Decision, error) {
	quotas, err := g.clientset.CoreV1().ResourceQuotas(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list resource quotas in %s: %w", namespace, err)
	}
	if len(quotas.Items) == 0 {
		return &Decision{Available: true}, nil
	}

	decision := &Decision{Available: true}
	for _, quota := range quotas.Items {
		for _, dim := range quotaDimensions {
			requested := dim.request(req)
			if requested == "" {
				continue
			}
			hard, ok := quota.Status.Hard[dim.hardKey]
			if !ok {
				continue
			}
			reqQty, err := resource.ParseQuantity(requested)
			if err != nil {
				return nil, fmt.Errorf("invalid %s request %q: %w", dim.label, requested, err)
			}

			available := hard.DeepCopy()
			if used, ok := quota.Status.Used[dim.hardKey]; ok {
				available.Sub(used)
			}
			if reqQty.Cmp(available) > 0 {
				decision.Available = false
				decision.Reasons = append(decision.Reasons, fmt.Sprintf(
					"%s: need %s, only %s available", dim.label, reqQty.String(), available.String()))
			}
		}
	}
	return decision, nil
}
