package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/adamavenir/agentmail/internal/types"
)

// MessageFrontmatter mirrors the Index record for a message file, per the
// message file format in the specification: "the frontmatter mirrors the
// Index record."
type MessageFrontmatter struct {
	ID          string              `yaml:"id"`
	ThreadID    string              `yaml:"thread_id"`
	Project     string              `yaml:"project"`
	From        string              `yaml:"from"`
	FromKind    types.FromKind      `yaml:"from_kind"`
	To          []string            `yaml:"to"`
	CC          []string            `yaml:"cc,omitempty"`
	BCC         []string            `yaml:"bcc,omitempty"`
	Created     int64               `yaml:"created"`
	Importance  types.Importance    `yaml:"importance"`
	AckRequired bool                `yaml:"ack_required"`
	Subject     string               `yaml:"subject"`
	Attachments []types.Attachment  `yaml:"attachments,omitempty"`
}

// EncodeMessage renders a frontmatter block followed by the markdown body.
func EncodeMessage(fm MessageFrontmatter, bodyMD string) ([]byte, error) {
	data, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(data)
	buf.WriteString("---\n\n")
	buf.WriteString(bodyMD)
	if !strings.HasSuffix(bodyMD, "\n") {
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}

// DecodeMessage splits a message file into its frontmatter and body.
func DecodeMessage(data []byte) (MessageFrontmatter, string, error) {
	const delim = "---\n"
	text := string(data)
	if !strings.HasPrefix(text, delim) {
		return MessageFrontmatter{}, "", fmt.Errorf("missing frontmatter delimiter")
	}
	rest := text[len(delim):]
	end := strings.Index(rest, "\n"+delim)
	if end == -1 {
		return MessageFrontmatter{}, "", fmt.Errorf("missing closing frontmatter delimiter")
	}
	fmText := rest[:end+1]
	body := strings.TrimPrefix(rest[end+1+len(delim):], "\n")

	var fm MessageFrontmatter
	if err := yaml.Unmarshal([]byte(fmText), &fm); err != nil {
		return MessageFrontmatter{}, "", fmt.Errorf("decode frontmatter: %w", err)
	}
	return fm, body, nil
}

// ClaimRecord is the JSON-serialized form of a claim file in claims/.
type ClaimRecord struct {
	ID        int64  `json:"id"`
	AgentName string `json:"agent_name"`
	Path      string `json:"path"`
	Exclusive bool   `json:"exclusive"`
	Reason    string `json:"reason,omitempty"`
	CreatedTS int64  `json:"created_ts"`
	ExpiresTS int64  `json:"expires_ts"`
}

// EncodeClaim renders a claim record as indented JSON.
func EncodeClaim(r ClaimRecord) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode claim: %w", err)
	}
	return append(data, '\n'), nil
}

// AgentProfileRecord is the JSON-serialized form of agents/<Name>/profile.json.
type AgentProfileRecord struct {
	Name            string `json:"name"`
	Program         string `json:"program"`
	Model           string `json:"model"`
	TaskDescription string `json:"task_description"`
	InceptionTS     int64  `json:"inception_ts"`
	LastActiveTS    int64  `json:"last_active_ts"`
	ContactPolicy   string `json:"contact_policy"`
}

// ProjectMetaRecord is the JSON-serialized form of project.json, the
// archive-root file that records the human_key a rebuild cannot otherwise
// recover (slug(human_key) is one-way).
type ProjectMetaRecord struct {
	HumanKey  string `json:"human_key"`
	Slug      string `json:"slug"`
	CreatedTS int64  `json:"created_ts"`
}

// EncodeProjectMeta renders a project meta record as indented JSON.
func EncodeProjectMeta(r ProjectMetaRecord) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode project meta: %w", err)
	}
	return append(data, '\n'), nil
}

// EncodeAgentProfile renders an agent profile record as indented JSON.
func EncodeAgentProfile(r AgentProfileRecord) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode agent profile: %w", err)
	}
	return append(data, '\n'), nil
}
