package workmgmt

type User struct {
	OID               string `json:"oid"`
	DisplayName       string `json:"displayName"`
	UserPrincipalName string `json:"userPrincipalName"`
	Mail              string `json:"mail,omitempty"`
	Department        string `json:"department,omitempty"`
	JobTitle          string `json:"jobTitle,omitempty"`
}

type KeyResult struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	TargetValue  float64 `json:"targetValue"`
	CurrentValue float64 `json:"currentValue"`
	Unit         string  `json:"unit"`
	Progress     int     `json:"progress"`
}

type Goal struct {
	ID          string      `json:"id"`
	CreatedBy   User        `json:"createdBy"`
	StartDate   string      `json:"startDate"`
	DueDate     string      `json:"dueDate"`
	Owners      []User      `json:"owners"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Status      string      `json:"status,omitempty"`
	Progress    int         `json:"progress"`
	Labels      []string    `json:"labels,omitempty"`
	KeyResults  []KeyResult `json:"keyResults,omitempty"`
}

type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AssignedTo  []User `json:"assignedTo"`
	DueDate     string `json:"dueDate"`
	Status      string `json:"status"`
	Priority    string `json:"priority,omitempty"`
	CreatedBy   User   `json:"createdBy"`
	CreatedAt   string `json:"createdAt"`
}

type FeedbackItem struct {
	ID          string `json:"id"`
	Sender      User   `json:"sender"`
	Recipient   User   `json:"recipient"`
	Message     string `json:"message"`
	Type        string `json:"type"`
	CreatedAt   string `json:"createdAt"`
	IsAnonymous bool   `json:"isAnonymous,omitempty"`
}

type Recognition struct {
	ID        string `json:"id"`
	Sender    User   `json:"sender"`
	Recipient User   `json:"recipient"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	CreatedAt string `json:"createdAt"`
	Likes     int    `json:"likes"`
}

type Review struct {
	ID          string `json:"id"`
	Reviewee    User   `json:"reviewee"`
	Reviewer    User   `json:"reviewer"`
	Period      string `json:"period"`
	Status      string `json:"status"`
	Rating      int    `json:"rating,omitempty"`
	CreatedAt   string `json:"createdAt"`
	CompletedAt string `json:"completedAt,omitempty"`
}
