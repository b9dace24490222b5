package models

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/smilemakc/wmcore/internal/domain/job"
	"github.com/smilemakc/wmcore/internal/domain/trigger"
)

// QueueToDomain assembles the domain Job view from a queue row and its
// (optional) runtime row — the shape every queue operation beyond a bare
// lease returns.
func QueueToDomain(q *JobQueueModel, rt *JobRuntimeModel) *job.Job {
	j := &job.Job{
		ID:          q.ID,
		WorkspaceID: q.WorkspaceID,
		Runnable: job.RunnableRef{
			Kind:         job.Kind(q.Kind),
			RunnableID:   q.RunnableID,
			RunnablePath: q.RunnablePath,
			ScriptLang:   job.Language(q.ScriptLang),
			RawCode:      q.RawCode,
			RawFlow:      []byte(q.RawFlow),
		},
		Caller: job.CallerIdentity{
			CreatedBy:           q.CreatedBy,
			PermissionedAs:      q.PermissionedAs,
			PermissionedAsEmail: q.PermissionedAsEmail,
			OnBehalfOfEmail:     q.OnBehalfOfEmail,
			TokenPrefix:         q.TokenPrefix,
		},
		Sched: job.Scheduling{
			Tag:                  q.Tag,
			Priority:             q.Priority,
			ScheduledFor:         q.ScheduledFor,
			ParentJob:            q.ParentJob,
			RootJob:              q.RootJob,
			FlowInnermostRootJob: q.FlowInnermostRootJob,
			FlowStepID:           q.FlowStepID,
			FlowStep:             q.FlowStep,
			TriggerKind:          job.TriggerKind(q.TriggerKind),
			Trigger:              q.Trigger,
		},
		Policy: job.Policy{
			ConcurrentLimit:        q.ConcurrentLimit,
			ConcurrencyTimeWindowS: q.ConcurrencyTimeWindowS,
			CacheTTL:               q.CacheTTL,
			Timeout:                q.Timeout,
			SameWorker:             q.SameWorker,
			VisibleToOwner:         q.VisibleToOwner,
			Labels:                 []string(q.Labels),
			Preprocessed:           q.Preprocessed,
		},
		Args:           map[string]any(q.Args),
		Running:        q.Running,
		StartedAt:      q.StartedAt,
		Suspend:        q.Suspend,
		SuspendUntil:   q.SuspendUntil,
		CanceledBy:     q.CanceledBy,
		CanceledReason: q.CanceledReason,
		Worker:         q.Worker,
		Extras:         map[string]any(q.Extras),
		FlowStatus:     []byte(q.FlowStatus),
	}
	if len(q.FlowLeafJobs) > 0 {
		j.FlowLeafJobs = make(map[string]uuid.UUID, len(q.FlowLeafJobs))
		for k, v := range q.FlowLeafJobs {
			if s, ok := v.(string); ok {
				if id, err := uuid.Parse(s); err == nil {
					j.FlowLeafJobs[k] = id
				}
			}
		}
	}
	if rt != nil {
		j.Ping = rt.Ping
		j.MemoryPeak = rt.MemoryPeak
	}
	return j
}

// CompletedToDomain assembles a job.Completion from a v2_job_completed row.
func CompletedToDomain(c *JobCompletedModel) *job.Completion {
	return &job.Completion{
		Status:        job.Status(c.Status),
		Result:        map[string]any(c.Result),
		ResultColumns: []string(c.ResultColumns),
		DurationMs:    c.DurationMs,
		CompletedAt:   c.CompletedAt,
		StartedAt:     c.StartedAt,
		FlowStatus:    []byte(c.FlowStatus),
		Worker:        c.Worker,
		Extras:        map[string]any(c.Extras),
	}
}

// QueueFromDomain builds the v2_job_queue row to insert for a freshly
// pushed job.
func QueueFromDomain(j *job.Job) *JobQueueModel {
	return &JobQueueModel{
		ID:                     j.ID,
		WorkspaceID:            j.WorkspaceID,
		Kind:                   string(j.Runnable.Kind),
		RunnableID:             j.Runnable.RunnableID,
		RunnablePath:           j.Runnable.RunnablePath,
		ScriptLang:             string(j.Runnable.ScriptLang),
		RawCode:                j.Runnable.RawCode,
		RawFlow:                JSONBRaw(j.Runnable.RawFlow),
		CreatedBy:              j.Caller.CreatedBy,
		PermissionedAs:         j.Caller.PermissionedAs,
		PermissionedAsEmail:    j.Caller.PermissionedAsEmail,
		OnBehalfOfEmail:        j.Caller.OnBehalfOfEmail,
		TokenPrefix:            j.Caller.TokenPrefix,
		Tag:                    j.Sched.Tag,
		Priority:               j.Sched.Priority,
		ScheduledFor:           j.Sched.ScheduledFor,
		ParentJob:              j.Sched.ParentJob,
		RootJob:                j.Sched.RootJob,
		FlowInnermostRootJob:   j.Sched.FlowInnermostRootJob,
		FlowStepID:             j.Sched.FlowStepID,
		FlowStep:               j.Sched.FlowStep,
		TriggerKind:            string(j.Sched.TriggerKind),
		Trigger:                j.Sched.Trigger,
		ConcurrentLimit:        j.Policy.ConcurrentLimit,
		ConcurrencyTimeWindowS: j.Policy.ConcurrencyTimeWindowS,
		CacheTTL:               j.Policy.CacheTTL,
		Timeout:                j.Policy.Timeout,
		SameWorker:             j.Policy.SameWorker,
		VisibleToOwner:         j.Policy.VisibleToOwner,
		Labels:                 StringArray(j.Policy.Labels),
		Preprocessed:           j.Policy.Preprocessed,
		Args:                   JSONBMap(j.Args),
		Running:                j.Running,
	}
}

// TriggerToDomain converts a storage trigger row to the domain Record.
func TriggerToDomain(t *TriggerModel) *trigger.Record {
	return &trigger.Record{
		ID:             t.ID,
		WorkspaceID:    t.WorkspaceID,
		Path:           t.Path,
		Family:         trigger.Family(t.Family),
		Config:         mustMarshalConfig(t.Config),
		Enabled:        t.Enabled,
		RunnablePath:   t.RunnablePath,
		RunnableKind:   job.Kind(t.RunnableKind),
		IsFlow:         t.IsFlow,
		ExternalID:     t.ExternalID,
		ServerID:       t.ServerID,
		LastServerPing: t.LastServerPing,
		ErrorCount:     t.ErrorCount,
		LastError:      t.LastError,
		CreatedBy:      t.CreatedBy,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

// TriggerFromDomain converts a domain Record back to the storage row,
// decoding Config into the JSONBMap the bun model expects.
func TriggerFromDomain(r *trigger.Record) *TriggerModel {
	cfg := make(JSONBMap)
	_ = unmarshalConfig(r.Config, &cfg)
	return &TriggerModel{
		ID:             r.ID,
		WorkspaceID:    r.WorkspaceID,
		Path:           r.Path,
		Family:         string(r.Family),
		Config:         cfg,
		Enabled:        r.Enabled,
		RunnablePath:   r.RunnablePath,
		RunnableKind:   string(r.RunnableKind),
		IsFlow:         r.IsFlow,
		ExternalID:     r.ExternalID,
		ServerID:       r.ServerID,
		LastServerPing: r.LastServerPing,
		ErrorCount:     r.ErrorCount,
		LastError:      r.LastError,
		CreatedBy:      r.CreatedBy,
	}
}

func mustMarshalConfig(cfg JSONBMap) json.RawMessage {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return raw
}

func unmarshalConfig(raw json.RawMessage, out *JSONBMap) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}
