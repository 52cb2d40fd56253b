package runtime

// TaskType identifies one of the closed set of task kinds a node can carry.
type TaskType string

const (
	TaskLaunchBrowser          TaskType = "LAUNCH_BROWSER"
	TaskPageToHTML             TaskType = "PAGE_TO_HTML"
	TaskExtractTextFromElement TaskType = "EXTRACT_TEXT_FROM_ELEMENT"
	TaskFillInput              TaskType = "FILL_INPUT"
	TaskClickElement           TaskType = "CLICK_ELEMENT"
	TaskWaitForElement         TaskType = "WAIT_FOR_ELEMENT"
	TaskDeliverViaWebhook      TaskType = "DELIVER_VIA_WEBHOOK"
	TaskExtractDataWithAI      TaskType = "EXTRACT_DATA_WITH_AI"
	TaskReadPropertyFromJSON   TaskType = "READ_PROPERTY_FROM_JSON"
	TaskAddPropertyToJSON      TaskType = "ADD_PROPERTY_TO_JSON"
	TaskNavigateURL            TaskType = "NAVIGATE_URL"
	TaskScrollToElement        TaskType = "SCROLL_TO_ELEMENT"
)

// ParamType classifies a task input or output.
type ParamType string

const (
	ParamString ParamType = "STRING"
	// ParamBrowserInstance marks a pass-through handle wired between browser
	// tasks; it never resolves to a string value.
	ParamBrowserInstance ParamType = "BROWSER_INSTANCE"
	ParamSelect          ParamType = "SELECT"
	ParamCredential      ParamType = "CREDENTIAL"
)

// Param describes one declared input or output of a task.
type Param struct {
	Name       string    `json:"name"`
	Type       ParamType `json:"type"`
	Required   bool      `json:"required,omitempty"`
	HideHandle bool      `json:"hideHandle,omitempty"`
}

// TaskDefinition is a static catalog entry: the declared parameter schema,
// credit cost and entry-point flag for one task type.
type TaskDefinition struct {
	Type         TaskType
	Label        string
	IsEntryPoint bool
	Credits      int
	Inputs       []Param
	Outputs      []Param
}

// Input returns the declared input with the given name, if any.
func (d TaskDefinition) Input(name string) (Param, bool) {
	for _, p := range d.Inputs {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}
