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
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/appforge/appforge/internal/recipe"
)

var ErrSecretNotFound = errors.New("secret not found")

const defaultSecretLength = 32

const secretAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Vault stores per-deployment secret material as one opaque secret object in
// the workspace namespace. Deployment records hold only the reference, never
// the values.
type Vault struct {
	clientset kubernetes.Interface
}

// NewVault creates a new secret vault adapter
func NewVault(clientset kubernetes.Interface) *Vault {
	return &Vault{clientset: clientset}
}

// Ensure resolves the secret schema into concrete values and writes them as
// one secret object named ref. Existing values win over supplied ones, which
// win over generation, so repeated installs never rotate credentials. Fields
// not marked for generation must be supplied by the caller.
func (v *Vault) Ensure(ctx context.Context, namespace, ref string, schema []recipe.SecretField, supplied map[string]string) (map[string]string, error) {
	existing, err := v.Read(ctx, namespace, ref)
	if err != nil && !errors.Is(err, ErrSecretNotFound) {
		return nil, err
	}

	values := make(map[string]string, len(schema))
	for _, field := range schema {
		if val, ok := existing[field.Key]; ok && val != "" {
			values[field.Key] = val
			continue
		}
		if val, ok := supplied[field.Key]; ok && val != "" {
			values[field.Key] = val
			continue
		}
		if !field.Generate {
			return nil, fmt.Errorf("secret %q must be supplied: %w", field.Key, ErrSecretValueRequired)
		}
		length := field.Length
		if length <= 0 {
			length = defaultSecretLength
		}
		generated, err := randomString(length)
		if err != nil {
			return nil, fmt.Errorf("failed to generate secret %q: %w", field.Key, err)
		}
		values[field.Key] = generated
	}

	if len(values) == 0 {
		return values, nil
	}

	data := make(map[string][]byte, len(values))
	for k, val := range values {
		data[k] = []byte(val)
	}
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      ref,
			Namespace: namespace,
		},
		Type: corev1.SecretTypeOpaque,
		Data: data,
	}

	_, err = v.clientset.CoreV1().Secrets(namespace).Create(ctx, secret, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		_, err = v.clientset.CoreV1().Secrets(namespace).Update(ctx, secret, metav1.UpdateOptions{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write secret %s/%s: %w", namespace, ref, err)
	}
	return values, nil
}

// ErrSecretValueRequired marks a schema field that cannot be auto-generated
// and was not supplied by the caller.
var ErrSecretValueRequired = errors.New("secret value required")

// Read returns the secret's values as a flat string map. Callers treat a
// missing secret as "not yet available" while the deployment is not running.
func (v *Vault) Read(ctx context.Context, namespace, ref string) (map[string]string, error) {
	secret, err := v.clientset.CoreV1().Secrets(namespace).Get(ctx, ref, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, ErrSecretNotFound
		}
		return nil, fmt.Errorf("failed to read secret %s/%s: %w", namespace, ref, err)
	}

	values := make(map[string]string, len(secret.Data))
	for k, val := range secret.Data {
		values[k] = string(val)
	}
	return values, nil
}

// Delete removes the secret object. Missing secrets are not an error; the
// namespace cascade may already have cleaned up.
func (v *Vault) Delete(ctx context.Context, namespace, ref string) error {
	err := v.clientset.CoreV1().Secrets(namespace).Delete(ctx, ref, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete secret %s/%s: %w", namespace, ref, err)
	}
	return nil
}

func randomString(length int) (string, error) {
	max := big.NewInt(int64(len(secretAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = secretAlphabet[n.Int64()]
	}
	return string(out), nil
}
