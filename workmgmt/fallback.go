package workmgmt

var (
	fallbackDirector = User{OID: "u-001", DisplayName: "Amara Okafor", UserPrincipalName: "amara.okafor@example.org", Department: "Leadership", JobTitle: "Executive Director"}
	fallbackPrograms = User{OID: "u-002", DisplayName: "Daniel Reyes", UserPrincipalName: "daniel.reyes@example.org", Department: "Programs", JobTitle: "Program Manager"}
	fallbackFinance  = User{OID: "u-003", DisplayName: "Mei Lin", UserPrincipalName: "mei.lin@example.org", Department: "Finance", JobTitle: "Finance Lead"}
)

// Fallback returns the static dataset served when the API is unavailable
// or rejects the key.
func Fallback(resource Resource) any {
	switch resource {
	case Goals:
		return []Goal{
			{
				ID: "g-001", CreatedBy: fallbackDirector, Owners: []User{fallbackPrograms},
				StartDate: "2025-01-01", DueDate: "2025-12-31", Title: "Serve 15,000 people",
				Status: "on-track", Progress: 64, Labels: []string{"impact"},
				KeyResults: []KeyResult{{ID: "kr-001", Title: "People served", TargetValue: 15000, CurrentValue: 9600, Unit: "people", Progress: 64}},
			},
			{
				ID: "g-002", CreatedBy: fallbackDirector, Owners: []User{fallbackFinance},
				StartDate: "2025-01-01", DueDate: "2025-12-31", Title: "Keep program ratio above 85%",
				Status: "at-risk", Progress: 40, Labels: []string{"finance"},
			},
		}
	case Tasks:
		return []Task{
			{ID: "t-001", Title: "Publish Q2 impact report", AssignedTo: []User{fallbackPrograms}, DueDate: "2025-07-15", Status: "in-progress", Priority: "high", CreatedBy: fallbackDirector, CreatedAt: "2025-06-01T09:00:00Z"},
			{ID: "t-002", Title: "Reconcile donor pledges", AssignedTo: []User{fallbackFinance}, DueDate: "2025-06-30", Status: "todo", Priority: "medium", CreatedBy: fallbackDirector, CreatedAt: "2025-06-03T09:00:00Z"},
		}
	case Feedback:
		return []FeedbackItem{
			{ID: "f-001", Sender: fallbackDirector, Recipient: fallbackPrograms, Message: "Great turnaround on the volunteer schedule.", Type: "praise", CreatedAt: "2025-06-10T14:00:00Z"},
		}
	case Recognitions:
		return []Recognition{
			{ID: "r-001", Sender: fallbackPrograms, Recipient: fallbackFinance, Title: "Audit ready", Message: "Closed the books two days early.", CreatedAt: "2025-06-12T16:30:00Z", Likes: 4},
		}
	case Users:
		return []User{fallbackDirector, fallbackPrograms, fallbackFinance}
	case Reviews:
		return []Review{
			{ID: "rv-001", Reviewee: fallbackPrograms, Reviewer: fallbackDirector, Period: "2025-H1", Status: "in-progress", CreatedAt: "2025-06-15T10:00:00Z"},
		}
	}
	return []any{}
}
