package job

// CheckClose applies the close rule's precondition. A forced close is always
// allowed; otherwise a job that is running or queued cannot be closed.
func CheckClose(j *Job, force bool) error {
	if force {
		return nil
	}
	if j.status.IsActive() {
		return &CloseError{ID: j.ID, Title: j.Title, Status: j.status}
	}
	return nil
}
