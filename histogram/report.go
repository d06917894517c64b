// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package histogram

import (
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/insitu/comm"
)

// Report writes h to w if c is the group's leader. Other ranks write
// nothing.
func Report(w io.Writer, c comm.Communicator, h *Histogram) error {
	if !comm.Leader(c) {
		return nil
	}
	_, err := io.WriteString(w, h.Format())
	return err
}

// Format renders the extents, counts, and edges of h.
func (h *Histogram) Format() string {
	var b strings.Builder
	name := h.Field
	if name == "" {
		name = "field"
	}
	fmt.Fprintf(&b, "\n%s extents: %v %v (cycle %d)\n\n", name, h.Min, h.Max, h.Cycle)
	fmt.Fprintf(&b, "Histogram of %s:\n\n", name)
	fmt.Fprintf(&b, "Counts:\n%v\n\n", h.Counts)
	fmt.Fprintf(&b, "Bin Edges:\n%v\n\n", h.Edges)
	return b.String()
}
