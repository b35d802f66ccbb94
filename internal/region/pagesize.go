// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package region

import "os"

var osPageSize = os.Getpagesize()

func pageMask() int { return osPageSize - 1 }
