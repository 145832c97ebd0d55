/*
Copyright 2018 Edward Robinson.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package node

import (
	"fmt"
	"log"
	"time"

	"github.com/errm/queuestrap/pkg/backoff"
	"github.com/errm/queuestrap/pkg/settings"
	"github.com/errm/queuestrap/pkg/util"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
)

// Tags read from the instance.
const (
	DatacenterTag     = "consul:datacenter"
	FirewallSourceTag = "queuestrap:firewall-source"
)

// Node represents an EC2 instance.
type Node struct {
	*ec2.Instance
	Region string
}

type metadataClient interface {
	GetMetadata(string) (string, error)
}

var b = backoff.Backoff{Seq: []int{1, 1, 2, 4, 8}}

// New returns a Node instance.
//
// If the EC2 instance doesn't have the datacenter tag yet, or the EC2 API
// is throttling requests, it will backoff and retry.
// If it isn't able to query EC2 or there are any other errors, an error will be returned.
func New(e ec2iface.EC2API, m metadataClient, region string) (*Node, error) {
	if !util.IsAWSRegion(region) {
		return nil, fmt.Errorf("%q does not look like an AWS region", region)
	}
	id, err := m.GetMetadata("instance-id")
	if err != nil {
		return nil, err
	}
	tries := 1
	for {
		output, err := e.DescribeInstances(&ec2.DescribeInstancesInput{InstanceIds: []*string{&id}})
		if err != nil {
			if aerr, ok := err.(awserr.Error); ok && aerr.Code() == "RequestLimitExceeded" {
				sleepFor := b.Duration(tries)
				log.Printf("The EC2 API is throttling requests, will try again in %s", sleepFor)
				time.Sleep(sleepFor)
				tries++
				continue
			}
			return nil, err
		}
		if len(output.Reservations) == 0 || len(output.Reservations[0].Instances) == 0 {
			return nil, fmt.Errorf("instance %s was not found", id)
		}
		node := Node{Instance: output.Reservations[0].Instances[0], Region: region}
		if node.Datacenter() == "" {
			sleepFor := b.Duration(tries)
			log.Printf("The %s tag is not yet set, will try again in %s", DatacenterTag, sleepFor)
			time.Sleep(sleepFor)
			tries++
			continue
		}
		return &node, nil
	}
}

// Datacenter returns the Consul datacenter the node belongs to.
//
// It reads the datacenter from a tag on the EC2 instance.
func (n *Node) Datacenter() string {
	return n.tag(DatacenterTag)
}

// Overrides are the settings taken from the instance.
func (n *Node) Overrides() settings.Settings {
	var s settings.Settings
	s.Consul.Datacenter = n.Datacenter()
	s.Firewall.Source = n.tag(FirewallSourceTag)
	return s
}

func (n *Node) tag(key string) string {
	for _, t := range n.Tags {
		if t.Key != nil && t.Value != nil && *t.Key == key {
			return *t.Value
		}
	}
	return ""
}
