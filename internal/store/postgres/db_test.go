// Copyright 2026 The WikiForge Authors
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

package postgres

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnStringParsesIntoPoolConfig(t *testing.T) {
	cfg := Config{
		Host:            "db.wiki.internal",
		Port:            "5432",
		User:            "wikiforge",
		Password:        "s3cret",
		Database:        "wikiforge",
		SSLMode:         "require",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.connString())
	require.NoError(t, err)
	assert.Equal(t, "db.wiki.internal", poolConfig.ConnConfig.Host)
	assert.Equal(t, uint16(5432), poolConfig.ConnConfig.Port)
	assert.Equal(t, "wikiforge", poolConfig.ConnConfig.Database)
	assert.Equal(t, int32(25), poolConfig.MaxConns)
	assert.Equal(t, int32(5), poolConfig.MinConns)
}
