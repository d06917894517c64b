// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package blueprint

import (
	"context"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"gopkg.in/yaml.v3"
)

// Load reads a JSON or YAML encoded node from path. Any path
// supported by package github.com/grailbio/base/file may be used.
func Load(ctx context.Context, path string) (n *Node, err error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(ctx); err == nil && cerr != nil {
			err = cerr
		}
	}()
	n, err = Decode(f.Reader(ctx))
	if err != nil {
		err = errors.E(err, path)
	}
	return
}

// Save writes n to path. Paths ending in ".yaml" or ".yml" are
// written as YAML; everything else is written as JSON.
func Save(ctx context.Context, path string, n *Node) error {
	var (
		p   []byte
		err error
	)
	if IsYAML(path) {
		p, err = yaml.Marshal(n)
	} else {
		p, err = n.MarshalJSON()
		p = append(p, '\n')
	}
	if err != nil {
		return err
	}
	f, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	if _, err := f.Writer(ctx).Write(p); err != nil {
		_ = f.Close(ctx)
		return err
	}
	return f.Close(ctx)
}

// IsYAML tells whether path names a YAML document.
func IsYAML(path string) bool {
	return strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml")
}
