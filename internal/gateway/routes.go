package gateway

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// authPolicyRequireJWT は認証必須ルートを表すauthPolicy値。
const authPolicyRequireJWT = "requireJwtToken"

// routesFile はルート設定YAMLのトップレベル構造。
type routesFile struct {
	// Routes はルート定義のリスト。
	Routes []routeConfig `yaml:"routes"`
	// Clusters は転送先クラスタ定義のリスト。
	Clusters []clusterConfig `yaml:"clusters"`
}

// routeConfig はYAML上のルート定義。
type routeConfig struct {
	// RouteID はルートの識別子。ログ出力に使う。
	RouteID string `yaml:"routeId"`
	// MatchPath はマッチ対象パス。末尾が/*の場合は配下すべてにマッチする。
	MatchPath string `yaml:"matchPath"`
	// MatchMethods はマッチ対象HTTPメソッド。空の場合はすべてにマッチする。
	MatchMethods []string `yaml:"matchMethods"`
	// ClusterID は転送先クラスタの識別子。
	ClusterID string `yaml:"clusterId"`
	// AuthPolicy は認証ポリシー。requireJwtTokenまたは空（認証不要）。
	AuthPolicy string `yaml:"authPolicy"`
}

// clusterConfig はYAML上の転送先クラスタ定義。
type clusterConfig struct {
	// ClusterID はクラスタの識別子。
	ClusterID string `yaml:"clusterId"`
	// Address は転送先のベースURL。
	Address string `yaml:"address"`
}

// route はマッチング用にコンパイル済みのルート。
type route struct {
	// id はルートの識別子。
	id string
	// prefix はマッチ対象パス（ワイルドカードの場合は/*を除いたプレフィックス）。
	prefix string
	// wildcard はプレフィックス配下すべてにマッチするかどうか。
	wildcard bool
	// methods はマッチ対象メソッドの集合。空の場合はすべてにマッチする。
	methods map[string]bool
	// address は転送先クラスタのベースURL。
	address string
	// requiresAuth は認証必須かどうか。
	requiresAuth bool
}

// routeTable はコンパイル済みルートの集合。
// 生成後は不変であり、再読込は新しいテーブルへの差し替えで行う。
type routeTable struct {
	routes []route
}

// loadRouteTable はYAMLファイルからルートテーブルを読み込む。
func loadRouteTable(path string) (*routeTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ルート設定ファイルの読み込みに失敗: %w", err)
	}
	return parseRouteTable(data)
}

// parseRouteTable はYAMLデータからルートテーブルを構築する。
// 未定義クラスタへの参照や不正なauthPolicyは設定ミスとしてエラーを返す。
func parseRouteTable(data []byte) (*routeTable, error) {
	var file routesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("ルート設定の解析に失敗: %w", err)
	}
	if len(file.Routes) == 0 {
		return nil, fmt.Errorf("ルート設定にルートが1件もありません")
	}

	clusters := make(map[string]string, len(file.Clusters))
	for _, c := range file.Clusters {
		if c.ClusterID == "" || c.Address == "" {
			return nil, fmt.Errorf("クラスタ定義にclusterIdまたはaddressがありません: %+v", c)
		}
		clusters[c.ClusterID] = c.Address
	}

	table := &routeTable{routes: make([]route, 0, len(file.Routes))}
	for _, rc := range file.Routes {
		if !strings.HasPrefix(rc.MatchPath, "/") {
			return nil, fmt.Errorf("ルート%sのmatchPathが/で始まっていません: %q", rc.RouteID, rc.MatchPath)
		}
		address, ok := clusters[rc.ClusterID]
		if !ok {
			return nil, fmt.Errorf("ルート%sが未定義のクラスタを参照しています: %q", rc.RouteID, rc.ClusterID)
		}
		if rc.AuthPolicy != "" && rc.AuthPolicy != authPolicyRequireJWT {
			return nil, fmt.Errorf("ルート%sのauthPolicyが不正です: %q", rc.RouteID, rc.AuthPolicy)
		}

		r := route{
			id:           rc.RouteID,
			prefix:       rc.MatchPath,
			address:      address,
			requiresAuth: rc.AuthPolicy == authPolicyRequireJWT,
		}
		if strings.HasSuffix(rc.MatchPath, "/*") {
			r.wildcard = true
			r.prefix = strings.TrimSuffix(rc.MatchPath, "/*")
		}
		if len(rc.MatchMethods) > 0 {
			r.methods = make(map[string]bool, len(rc.MatchMethods))
			for _, m := range rc.MatchMethods {
				r.methods[strings.ToUpper(m)] = true
			}
		}
		table.routes = append(table.routes, r)
	}

	return table, nil
}

// resolve はメソッドとパスにマッチするルートを返す。
// 完全一致はワイルドカードより優先し、ワイルドカード同士では
// リテラルプレフィックスが最も長いものを選ぶ。
func (t *routeTable) resolve(method, path string) (route, bool) {
	var best route
	found := false

	for _, r := range t.routes {
		if r.methods != nil && !r.methods[method] {
			continue
		}

		if !r.wildcard {
			if r.prefix == path {
				// 完全一致は即決
				return r, true
			}
			continue
		}

		if path != r.prefix && !strings.HasPrefix(path, r.prefix+"/") {
			continue
		}
		if !found || len(r.prefix) > len(best.prefix) {
			best = r
			found = true
		}
	}

	return best, found
}
