// Copyright ©2019 The Gonum Authors. All rights reserved.
// Copyright ©2024 The gokern Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gokern

import (
	"fmt"
	"runtime/debug"
)

const root = "github.com/LynnColeArt/gokern"

// Version reports the gokern module version and checksum recorded in the
// running binary's build info, so tools such as cmd/basic can print which
// runtime produced their results. Both values are empty when the binary
// was built without module support or gokern is the main module.
//
// A replaced module is reported as "old=>new"; the format may change.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		if m.Replace == nil {
			return m.Version, m.Sum
		}
		return replaced(m)
	}
	return "", ""
}

func replaced(m *debug.Module) (version, sum string) {
	r := m.Replace
	switch {
	case r.Version != "" && r.Path != "":
		return fmt.Sprintf("%s=>%s %s", m.Version, r.Path, r.Version), r.Sum
	case r.Version != "":
		return fmt.Sprintf("%s=>%s", m.Version, r.Version), r.Sum
	case r.Path != "":
		return fmt.Sprintf("%s=>%s", m.Version, r.Path), r.Sum
	}
	return m.Version + "*", m.Sum + "*"
}
