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

package recipe

func floatPtr(f float64) *float64 { return &f }

// Builtin returns the seed catalog installed by the migrate command.
func Builtin() []*Recipe {
	return []*Recipe{
		{
			Slug:        "postgres",
			Version:     "16.4",
			Name:        "PostgreSQL",
			Description: "Relational database",
			ConfigSchema: Schema{Fields: []Field{
				{Name: "database", Type: TypeString, Default: "app"},
				{Name: "max_connections", Type: TypeNumber, Default: 100, Min: floatPtr(10), Max: floatPtr(1000)},
			}},
			Secrets: []SecretField{
				{Key: "POSTGRES_PASSWORD", Generate: true, Length: 32},
			},
			Resources: Resources{CPU: "500m", Memory: "512Mi", Storage: "1Gi"},
			Template: Template{
				Image: "postgres:16.4",
				Port:  5432,
				Env: map[string]string{
					"POSTGRES_DB": "{{config.database}}",
				},
				Replicas: 1,
			},
		},
		{
			Slug:        "redis",
			Version:     "7.4",
			Name:        "Redis",
			Description: "In-memory cache",
			ConfigSchema: Schema{Fields: []Field{
				{Name: "maxmemory_policy", Type: TypeEnum, Default: "noeviction",
					Values: []string{"noeviction", "allkeys-lru", "volatile-lru"}},
			}},
			Resources: Resources{CPU: "250m", Memory: "256Mi"},
			Template: Template{
				Image: "redis:7.4",
				Port:  6379,
				Env: map[string]string{
					"REDIS_MAXMEMORY_POLICY": "{{config.maxmemory_policy}}",
				},
				Replicas: 1,
			},
		},
		{
			Slug:        "webapp",
			Version:     "1.0.0",
			Name:        "Web Application",
			Description: "Stateless web application backed by PostgreSQL and Redis",
			ConfigSchema: Schema{Fields: []Field{
				{Name: "image", Type: TypeString, Required: true},
				{Name: "replicas", Type: TypeNumber, Default: 2, Min: floatPtr(1), Max: floatPtr(10)},
				{Name: "debug", Type: TypeBoolean, Default: false},
			}},
			Dependencies: []Dependency{
				{Recipe: "postgres", Alias: "db"},
				{Recipe: "redis", Alias: "cache"},
			},
			Resources: Resources{CPU: "500m", Memory: "512Mi"},
			Template: Template{
				Image: "{{config.image}}",
				Port:  8080,
				Env: map[string]string{
					"DATABASE_HOST": "{{dep.db.host}}",
					"DATABASE_PORT": "{{dep.db.port}}",
					"CACHE_HOST":    "{{dep.cache.host}}",
					"CACHE_PORT":    "{{dep.cache.port}}",
					"DEBUG":         "{{config.debug}}",
				},
				HealthPath: "/healthz",
				Replicas:   1,
			},
		},
	}
}
