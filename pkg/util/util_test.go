package util_test

import (
	"testing"

	"github.com/errm/queuestrap/pkg/util"
)

func TestIsAWSRegion(t *testing.T) {
	testCases := []struct {
		region string
		valid  bool
	}{
		{
			region: "us-east-2",
			valid:  true,
		},
		{
			region: "us-east-1",
			valid:  true,
		},
		{
			region: "us-west-1",
			valid:  true,
		},
		{
			region: "us-west-2",
			valid:  true,
		},
		{
			region: "ap-northeast-1",
			valid:  true,
		},
		{
			region: "cn-northwest-1",
			valid:  true,
		},
		{
			region: "us-gov-west-1",
			valid:  true,
		},
		{
			region: "sealand-central-1",
			valid:  false,
		},
		{
			region: "onion-ring-sandwich",
			valid:  false,
		},
		{
			region: "meh",
			valid:  false,
		},
	}
	for _, test := range testCases {
		result := util.IsAWSRegion(test.region)
		if result != test.valid {
			t.Errorf("Expected the result for: %v to be %v, but was %v", test.region, test.valid, result)
		}
	}
}

func TestIsPort(t *testing.T) {
	testCases := []struct {
		port  int
		valid bool
	}{
		{port: 5672, valid: true},
		{port: 1, valid: true},
		{port: 65535, valid: true},
		{port: 0, valid: false},
		{port: -1, valid: false},
		{port: 65536, valid: false},
		{port: 25672 + 40000, valid: false},
	}
	for _, test := range testCases {
		if result := util.IsPort(test.port); result != test.valid {
			t.Errorf("Expected the result for: %v to be %v, but was %v", test.port, test.valid, result)
		}
	}
}
