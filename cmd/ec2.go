package cmd

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/ec2metadata"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/errm/queuestrap/pkg/node"
	"github.com/errm/queuestrap/pkg/settings"
	"github.com/pkg/errors"
)

func ec2Overrides() (settings.Settings, error) {
	sess, err := session.NewSession()
	if err != nil {
		return settings.Settings{}, errors.Wrap(err, "unable to create AWS session")
	}
	metadata := ec2metadata.New(sess)
	region, err := metadata.Region()
	if err != nil {
		return settings.Settings{}, errors.Wrap(err, "unable to read region from instance metadata")
	}
	instance, err := node.New(ec2.New(sess, &aws.Config{Region: aws.String(region)}), metadata, region)
	if err != nil {
		return settings.Settings{}, err
	}
	return instance.Overrides(), nil
}
