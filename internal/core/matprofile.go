//go:build matprofile

package core

import "gocv.io/x/gocv"

// LiveMats returns the number of Mats created and not yet closed.
func LiveMats() int {
	return gocv.MatProfile.Count()
}
