package constants

// Strategy names one inference variant over the same document.
type Strategy string

const (
	StrategyTotal Strategy = "total" // page images + markdown
	StrategyText  Strategy = "text"  // markdown only
	StrategyImage Strategy = "image" // page images only
)

// Strategies in reconciliation precedence order.
var Strategies = []Strategy{StrategyTotal, StrategyText, StrategyImage}

// DeploymentEnv selects provider availability and model lists.
type DeploymentEnv string

const (
	DeploymentLocal DeploymentEnv = "local"
	DeploymentCloud DeploymentEnv = "cloud"
)
