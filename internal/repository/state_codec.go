package repository

import (
	"bytes"
	"encoding/json"
	"fmt"

	"dmcs/internal/domain"
)

// projectModel は複数プロジェクト形式の1プロジェクト分のJSON表現。
type projectModel struct {
	MigrationsFolder string              `json:"migrationsFolder"`
	Migrations       map[string][]string `json:"migrations"`
}

// singleModel は単一プロジェクト形式のJSON表現。
type singleModel struct {
	Migrations map[string][]string `json:"migrations"`
}

// decodeDocument はJSONの形状から形式を判定してDocumentに変換する。
// トップレベルのキーが "migrations" のみで、その値が環境名→配列のマップであれば単一プロジェクト形式とみなす。
func decodeDocument(data []byte) (*domain.Document, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfigParse, err)
	}
	if top == nil {
		return nil, fmt.Errorf("%w: document must be a JSON object", domain.ErrConfigParse)
	}

	if raw, ok := top["migrations"]; ok && len(top) == 1 {
		var envs map[string][]string
		if err := json.Unmarshal(raw, &envs); err == nil {
			if envs == nil {
				envs = make(map[string][]string)
			}
			return &domain.Document{
				Kind: domain.KindSingleProject,
				Projects: map[string]*domain.Project{
					domain.DefaultProjectName: {
						Name:         domain.DefaultProjectName,
						Environments: normalizeEnvironments(envs),
					},
				},
			}, nil
		}
	}

	doc := domain.NewMultiProjectDocument()
	for name, raw := range top {
		var pm projectModel
		dec := json.NewDecoder(bytes.NewReader(raw))
		// 単一プロジェクト形式の壊れた環境リストをプロジェクトと誤認しない
		dec.DisallowUnknownFields()
		if err := dec.Decode(&pm); err != nil {
			return nil, fmt.Errorf("%w: project %s: %v", domain.ErrConfigParse, name, err)
		}
		if name == "" {
			return nil, fmt.Errorf("%w: empty project name", domain.ErrConfigParse)
		}
		if pm.Migrations == nil {
			pm.Migrations = make(map[string][]string)
		}
		doc.Projects[name] = &domain.Project{
			Name:             name,
			MigrationsFolder: pm.MigrationsFolder,
			Environments:     normalizeEnvironments(pm.Migrations),
		}
	}
	return doc, nil
}

// normalizeEnvironments はnullの配列を空配列に置き換え、重複を取り除く。
func normalizeEnvironments(envs map[string][]string) map[string][]string {
	out := make(map[string][]string, len(envs))
	for env, files := range envs {
		seen := make(map[string]struct{}, len(files))
		list := make([]string, 0, len(files))
		for _, f := range files {
			if _, dup := seen[f]; dup {
				continue
			}
			seen[f] = struct{}{}
			list = append(list, f)
		}
		out[env] = list
	}
	return out
}

// encodeDocument はDocumentを元の形式のJSONに変換する（インデント2）。
func encodeDocument(doc *domain.Document) ([]byte, error) {
	var v any
	switch doc.Kind {
	case domain.KindSingleProject:
		p := doc.Projects[domain.DefaultProjectName]
		if p == nil {
			return nil, fmt.Errorf("%w: single-project document without project", domain.ErrUnsupportedDocument)
		}
		v = singleModel{Migrations: p.Environments}
	case domain.KindMultiProject:
		projects := make(map[string]projectModel, len(doc.Projects))
		for name, p := range doc.Projects {
			projects[name] = projectModel{
				MigrationsFolder: p.MigrationsFolder,
				Migrations:       p.Environments,
			}
		}
		v = projects
	default:
		return nil, fmt.Errorf("%w: kind %d", domain.ErrUnsupportedDocument, doc.Kind)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding state document: %w", err)
	}
	return append(data, '\n'), nil
}
