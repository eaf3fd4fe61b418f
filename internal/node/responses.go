package node

import (
	"fmt"
	"strings"

	"firefly/internal/casper"
	"firefly/internal/models"
)

// Success texts returned by the node. These are matched literally and are the
// compatibility boundary with the node's message format.
const (
	deploySuccessPrefix  = "Success! DeployId is: "
	proposeSuccessPrefix = "Success! Block "
	proposeSuccessSuffix = " created and added."
)

// ParseDeployResult extracts the deploy id from a doDeploy success text
func ParseDeployResult(text string) (models.DeployID, error) {
	id, ok := strings.CutPrefix(text, deploySuccessPrefix)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: deploy: %q", ErrUnexpectedResponse, text)
	}
	return models.DeployID(id), nil
}

// ParseProposeResult extracts the block hash from a propose success text
func ParseProposeResult(text string) (models.BlockID, error) {
	rest, ok := strings.CutPrefix(text, proposeSuccessPrefix)
	if !ok {
		return "", fmt.Errorf("%w: propose: %q", ErrUnexpectedResponse, text)
	}
	hash, ok := strings.CutSuffix(rest, proposeSuccessSuffix)
	if !ok || hash == "" {
		return "", fmt.Errorf("%w: propose: %q", ErrUnexpectedResponse, text)
	}
	return models.BlockID(hash), nil
}

// unwrapResult turns the error/result oneof into the success text or a typed error
func unwrapResult(op string, resp *casper.StringResult) (string, error) {
	switch {
	case resp.Error != nil:
		return "", &RejectedError{Op: op, Messages: resp.Error.Messages}
	case resp.Result != nil:
		return *resp.Result, nil
	default:
		return "", fmt.Errorf("%w: %s: empty response", ErrUnexpectedResponse, op)
	}
}
