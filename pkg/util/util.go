// Package util holds small sanity checks shared by the other packages.
package util

import "regexp"

var awsRegion = regexp.MustCompile(`^[a-z\-]{2,6}-[a-z]{4,9}-\d$`)

// IsAWSRegion checks that region is shaped like an AWS region name.
// It does not guarantee that the region exists.
func IsAWSRegion(region string) bool {
	return awsRegion.MatchString(region)
}

// IsPort reports whether p is a usable TCP port number.
func IsPort(p int) bool {
	return p >= 1 && p <= 65535
}
