package gateway

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/hochfrequenz/nf-ci-console/internal/domain"
)

// Accepted aliases for each logical field. The backend has shipped snake_case,
// camelCase and Go-exported spellings over time.
var (
	taskIDKeys        = []string{"task_id", "taskId", "TaskID", "id", "ID"}
	taskNameKeys      = []string{"task_name", "taskName", "TaskName"}
	statusKeys        = []string{"status", "Status"}
	paramsKeys        = []string{"params", "Params", "queue_params", "QueueParams"}
	componentKeys     = []string{"nf", "NF", "component", "Component"}
	requestNumberKeys = []string{"pr_number", "prNumber", "PRNumber", "pr_version", "prVersion", "PRVersion"}
	timeKeys          = []string{"time", "Time"}
	resultKeys        = []string{"result", "Result"}
	percentKeys       = []string{"percent", "Percent"}
	remainingKeys     = []string{"remaining", "Remaining"}
	timestampKeys     = []string{"timestamp", "Timestamp"}
	failedTestsKeys   = []string{"failed_tests", "failedTests", "FailedTests"}
	failedTestKeys    = []string{"failed_test", "failedTest", "FailedTest"}
	logsKeys          = []string{"logs", "Logs"}
	numberKeys        = []string{"number", "Number"}
	titleKeys         = []string{"title", "Title"}
	recordsKeys       = []string{"records", "Records"}
)

// object is a JSON object with lazily decoded members
type object map[string]json.RawMessage

// raw returns the first present, non-null member among keys
func (o object) raw(keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := o[k]; ok && !isNull(v) {
			return v
		}
	}
	return nil
}

// str returns the first member among keys as text. Numbers are rendered
// verbatim; other kinds yield "".
func (o object) str(keys ...string) string {
	return scalarString(o.raw(keys...))
}

// int returns the first member among keys as an integer, accepting numeric strings
func (o object) int(keys ...string) int {
	s := o.str(keys...)
	if s == "" {
		return 0
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

func scalarString(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String()
	}
	return ""
}

func isNull(v json.RawMessage) bool {
	t := bytes.TrimSpace(v)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// decodeArray splits an array payload into elements. A null body reports
// null=true; any other non-array shape is a *domain.DataShapeError.
// wrapperKeys name object members that may hold the array instead; the
// first one present decides, and a null member counts as a null body.
func decodeArray(op string, data []byte, wrapperKeys ...string) (elems []json.RawMessage, null bool, err error) {
	if isNull(data) {
		return nil, true, nil
	}
	if err := json.Unmarshal(data, &elems); err == nil {
		return elems, false, nil
	}
	if len(wrapperKeys) > 0 {
		var obj object
		if json.Unmarshal(data, &obj) == nil {
			for _, k := range wrapperKeys {
				inner, ok := obj[k]
				if !ok {
					continue
				}
				if isNull(inner) {
					return nil, true, nil
				}
				if err := json.Unmarshal(inner, &elems); err == nil {
					return elems, false, nil
				}
				break
			}
		}
	}
	return nil, false, &domain.DataShapeError{Op: op, Want: "array"}
}

func decodeObject(v json.RawMessage) object {
	var obj object
	if err := json.Unmarshal(v, &obj); err != nil {
		return object{}
	}
	return obj
}

// decodeParams accepts a list of {component, number} objects, a list of
// [component, number] pairs, or an object mapping component to number.
func decodeParams(v json.RawMessage) []domain.TaskParam {
	if v == nil {
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(v, &list); err == nil {
		params := make([]domain.TaskParam, 0, len(list))
		for _, item := range list {
			params = append(params, decodeParam(item))
		}
		return params
	}

	var byComponent map[string]json.RawMessage
	if err := json.Unmarshal(v, &byComponent); err == nil {
		components := make([]string, 0, len(byComponent))
		for k := range byComponent {
			components = append(components, k)
		}
		sort.Strings(components)
		params := make([]domain.TaskParam, 0, len(components))
		for _, k := range components {
			params = append(params, domain.TaskParam{Component: k, RequestNumber: scalarString(byComponent[k])})
		}
		return params
	}
	return nil
}

func decodeParam(v json.RawMessage) domain.TaskParam {
	var pair []json.RawMessage
	if err := json.Unmarshal(v, &pair); err == nil {
		var p domain.TaskParam
		if len(pair) > 0 {
			p.Component = scalarString(pair[0])
		}
		if len(pair) > 1 {
			p.RequestNumber = scalarString(pair[1])
		}
		return p
	}
	obj := decodeObject(v)
	return domain.TaskParam{
		Component:     obj.str(componentKeys...),
		RequestNumber: obj.str(requestNumberKeys...),
	}
}

func decodeQueue(op string, data []byte) (List[domain.RemoteTask], error) {
	elems, null, err := decodeArray(op, data)
	if err != nil || null {
		return List[domain.RemoteTask]{Null: null}, err
	}
	tasks := make([]domain.RemoteTask, 0, len(elems))
	for _, e := range elems {
		obj := decodeObject(e)
		raw := obj.str(statusKeys...)
		tasks = append(tasks, domain.RemoteTask{
			ID:        obj.str(taskIDKeys...),
			Status:    domain.ParseStatus(raw),
			RawStatus: raw,
			Params:    decodeParams(obj.raw(paramsKeys...)),
			Name:      obj.str(taskNameKeys...),
		})
	}
	return List[domain.RemoteTask]{Items: tasks}, nil
}

func decodeRunning(op string, data []byte) (List[domain.RunningTask], error) {
	elems, null, err := decodeArray(op, data)
	if err != nil || null {
		return List[domain.RunningTask]{Null: null}, err
	}
	tasks := make([]domain.RunningTask, 0, len(elems))
	for _, e := range elems {
		obj := decodeObject(e)
		tasks = append(tasks, domain.RunningTask{
			ID:        obj.str(taskIDKeys...),
			Name:      obj.str(taskNameKeys...),
			Percent:   obj.int(percentKeys...),
			Remaining: obj.int(remainingKeys...),
		})
	}
	return List[domain.RunningTask]{Items: tasks}, nil
}

func decodeHistory(op string, data []byte) (List[domain.HistoryRecord], error) {
	elems, null, err := decodeArray(op, data, recordsKeys...)
	if err != nil || null {
		return List[domain.HistoryRecord]{Null: null}, err
	}
	records := make([]domain.HistoryRecord, 0, len(elems))
	for _, e := range elems {
		obj := decodeObject(e)
		records = append(records, domain.HistoryRecord{
			Time:     obj.str(timeKeys...),
			TaskName: obj.str(taskNameKeys...),
			Result:   obj.str(resultKeys...),
			Params:   decodeParams(obj.raw(paramsKeys...)),
		})
	}
	return List[domain.HistoryRecord]{Items: records}, nil
}

func decodeShortlist(op string, data []byte) ([]domain.ReviewRequest, error) {
	elems, null, err := decodeArray(op, data)
	if err != nil || null {
		return nil, err
	}
	prs := make([]domain.ReviewRequest, 0, len(elems))
	for _, e := range elems {
		obj := decodeObject(e)
		n := obj.int(numberKeys...)
		if n <= 0 {
			continue
		}
		prs = append(prs, domain.ReviewRequest{Number: n, Title: obj.str(titleKeys...)})
	}
	return prs, nil
}

func decodeTaskDetail(op string, data []byte) (domain.TaskDetail, error) {
	var obj object
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return domain.TaskDetail{}, &domain.DataShapeError{Op: op, Want: "object", Err: err}
	}

	raw := obj.str(statusKeys...)
	detail := domain.TaskDetail{
		Status:    domain.ParseStatus(raw),
		RawStatus: raw,
		Logs:      decodeStrings(obj.raw(logsKeys...)),
	}
	if ts, err := strconv.ParseFloat(obj.str(timestampKeys...), 64); err == nil {
		detail.Timestamp = int64(ts)
	}
	detail.FailedTests = decodeStrings(obj.raw(failedTestsKeys...))
	if len(detail.FailedTests) == 0 {
		if single := strings.TrimSpace(obj.str(failedTestKeys...)); single != "" {
			detail.FailedTests = []string{single}
		}
	}
	return detail, nil
}

// decodeStrings accepts a string or an array of strings
func decodeStrings(v json.RawMessage) []string {
	if v == nil {
		return nil
	}
	var list []json.RawMessage
	if err := json.Unmarshal(v, &list); err == nil {
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, scalarString(item))
		}
		return out
	}
	if s := scalarString(v); s != "" {
		return []string{s}
	}
	return nil
}
