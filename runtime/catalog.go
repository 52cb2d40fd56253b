package runtime

// Catalog maps every task type to its definition. The set is closed: an
// unknown type reaching GetTaskDefinition is a programming error, not a
// runtime condition, so the lookup panics instead of returning an error.
var Catalog = map[TaskType]TaskDefinition{
	TaskLaunchBrowser: {
		Type:         TaskLaunchBrowser,
		Label:        "Launch browser",
		IsEntryPoint: true,
		Credits:      5,
		Inputs: []Param{
			{Name: "Website Url", Type: ParamString, Required: true, HideHandle: true},
		},
		Outputs: []Param{
			{Name: "Web page", Type: ParamBrowserInstance},
		},
	},
	TaskPageToHTML: {
		Type:    TaskPageToHTML,
		Label:   "Get html from page",
		Credits: 2,
		Inputs: []Param{
			{Name: "Web page", Type: ParamBrowserInstance, Required: true},
		},
		Outputs: []Param{
			{Name: "HTML", Type: ParamString},
			{Name: "Web page", Type: ParamBrowserInstance},
		},
	},
	TaskExtractTextFromElement: {
		Type:    TaskExtractTextFromElement,
		Label:   "Extract text from element",
		Credits: 2,
		Inputs: []Param{
			{Name: "Html", Type: ParamString, Required: true},
			{Name: "Selector", Type: ParamString, Required: true},
		},
		Outputs: []Param{
			{Name: "Extracted text", Type: ParamString},
		},
	},
	TaskFillInput: {
		Type:    TaskFillInput,
		Label:   "Fill input",
		Credits: 1,
		Inputs: []Param{
			{Name: "Web page", Type: ParamBrowserInstance, Required: true},
			{Name: "Selector", Type: ParamString, Required: true},
			{Name: "Value", Type: ParamString, Required: true},
		},
		Outputs: []Param{
			{Name: "Web page", Type: ParamBrowserInstance},
		},
	},
	TaskClickElement: {
		Type:    TaskClickElement,
		Label:   "Click element",
		Credits: 1,
		Inputs: []Param{
			{Name: "webpage", Type: ParamBrowserInstance, Required: true},
			{Name: "Selector", Type: ParamString, Required: true},
		},
		Outputs: []Param{
			{Name: "Web page", Type: ParamBrowserInstance},
		},
	},
	TaskWaitForElement: {
		Type:    TaskWaitForElement,
		Label:   "Wait for element",
		Credits: 1,
		Inputs: []Param{
			{Name: "webpage", Type: ParamBrowserInstance, Required: true},
			{Name: "Selector", Type: ParamString, Required: true},
			{Name: "Visibility", Type: ParamSelect, Required: true, HideHandle: true},
		},
		Outputs: []Param{
			{Name: "Web page", Type: ParamBrowserInstance},
		},
	},
	TaskDeliverViaWebhook: {
		Type:    TaskDeliverViaWebhook,
		Label:   "Deliver via webhook",
		Credits: 1,
		Inputs: []Param{
			{Name: "Target URL", Type: ParamString, Required: true},
			{Name: "Body", Type: ParamString, Required: true},
		},
	},
	TaskExtractDataWithAI: {
		Type:    TaskExtractDataWithAI,
		Label:   "Extract data with AI",
		Credits: 4,
		Inputs: []Param{
			{Name: "Content", Type: ParamString, Required: true},
			{Name: "Credentials", Type: ParamCredential, Required: true},
			{Name: "Prompt", Type: ParamString, Required: true},
		},
		Outputs: []Param{
			{Name: "Extracted data", Type: ParamString},
		},
	},
	TaskReadPropertyFromJSON: {
		Type:    TaskReadPropertyFromJSON,
		Label:   "Read property from JSON",
		Credits: 1,
		Inputs: []Param{
			{Name: "JSON", Type: ParamString, Required: true},
			{Name: "Property name", Type: ParamString, Required: true},
		},
		Outputs: []Param{
			{Name: "Property value", Type: ParamString},
		},
	},
	TaskAddPropertyToJSON: {
		Type:    TaskAddPropertyToJSON,
		Label:   "Add property to JSON",
		Credits: 1,
		Inputs: []Param{
			{Name: "JSON", Type: ParamString, Required: true},
			{Name: "Property name", Type: ParamString, Required: true},
			{Name: "Property value", Type: ParamString, Required: true},
		},
		Outputs: []Param{
			{Name: "Updated JSON", Type: ParamString},
		},
	},
	TaskNavigateURL: {
		Type:    TaskNavigateURL,
		Label:   "Navigate to URL",
		Credits: 2,
		Inputs: []Param{
			{Name: "webpage", Type: ParamBrowserInstance, Required: true},
			{Name: "URL", Type: ParamString, Required: true},
		},
		Outputs: []Param{
			{Name: "Web page", Type: ParamBrowserInstance},
		},
	},
	TaskScrollToElement: {
		Type:    TaskScrollToElement,
		Label:   "Scroll to element",
		Credits: 1,
		Inputs: []Param{
			{Name: "webpage", Type: ParamBrowserInstance, Required: true},
			{Name: "Selector", Type: ParamString, Required: true},
		},
		Outputs: []Param{
			{Name: "Web page", Type: ParamBrowserInstance},
		},
	},
}

// GetTaskDefinition looks up the catalog entry for a task type.
func GetTaskDefinition(t TaskType) TaskDefinition {
	def, ok := Catalog[t]
	if !ok {
		panic("unknown task type: " + string(t))
	}
	return def
}

// WorkflowCost sums the credit cost of every node in a graph.
func WorkflowCost(nodes []Node) int {
	total := 0
	for _, n := range nodes {
		total += GetTaskDefinition(n.Type).Credits
	}
	return total
}
