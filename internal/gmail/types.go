package gmail

type ThreadID string
type LabelID string

// LabelInbox is the system label every inbox thread carries.
const LabelInbox LabelID = "INBOX"

type Label struct {
	ID   LabelID
	Name string
}

// ThreadPage is one page of a threads.list response.
type ThreadPage struct {
	IDs           []ThreadID
	NextPageToken string
}

// ThreadMeta holds the label data observed for a thread.
type ThreadMeta struct {
	ID       ThreadID
	LabelIDs []LabelID // union over the thread's messages, first-seen order
}

type Query struct {
	Raw string // Gmail query string, already formed (e.g., `in:inbox is:unread`)
}
