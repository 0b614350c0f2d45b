package pipeline

// ItemResult is the outcome for one input of a batch.
type ItemResult struct {
	Source string
	Output string
	Err    error
}

// Report collects the per-document outcomes of one trigger run. Files lists
// the artifacts the run wrote, in order.
type Report struct {
	Operation string
	Items     []ItemResult
	Files     []string
}

func (r *Report) add(source, output string, err error) {
	r.Items = append(r.Items, ItemResult{Source: source, Output: output, Err: err})
	if err == nil && output != "" {
		r.Files = append(r.Files, output)
	}
}

// Processed returns the successful items.
func (r Report) Processed() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if it.Err == nil {
			out = append(out, it)
		}
	}
	return out
}

// Failed returns the items that failed.
func (r Report) Failed() []ItemResult {
	var out []ItemResult
	for _, it := range r.Items {
		if it.Err != nil {
			out = append(out, it)
		}
	}
	return out
}

// FailedSources maps each failed source to its error text.
func (r Report) FailedSources() map[string]string {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	out := make(map[string]string, len(failed))
	for _, it := range failed {
		out[it.Source] = it.Err.Error()
	}
	return out
}
