package domain

import (
	"fmt"
	"time"
)

// CallRequest is a domain model for a contract function call
type CallRequest struct {
	Id              string
	AppName         string
	Priority        int
	ChainID         int
	ContractAddress string
	Function        string
	Args            []string
	SubmittedAt     time.Time
}

func NewCallRequest(appName string, priority int, chain_id int, contractAddr string, function string, args []string) (*CallRequest, error) {

	//Validate and prepare the call request
	//TODO: Add ACL to only allow from valid applications
	if appName == "" {
		return nil, fmt.Errorf("app name is required")
	}

	if priority < 1 || priority > 3 {
		return nil, fmt.Errorf("Invalid priority value")
	}

	if chain_id == 0 {
		return nil, fmt.Errorf("Chain id is required")
	}

	if len(contractAddr) == 0 {
		return nil, fmt.Errorf("Contract address is required")
	}

	if function == "" {
		return nil, fmt.Errorf("Function name is required")
	}

	return &CallRequest{
		AppName:         appName,
		Priority:        priority,
		ChainID:         chain_id,
		ContractAddress: contractAddr,
		Function:        function,
		Args:            args,
		SubmittedAt:     time.Now(),
	}, nil
}
