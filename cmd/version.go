package cmd

import (
	"fmt"
	"strings"

	"k8s-hpa-analyzer/internal/updater"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Exibir versão da aplicação",
	Long:  `Exibe a versão atual do k8s-hpa-analyzer e verifica se há updates disponíveis.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("k8s-hpa-analyzer versão %s\n\n", updater.Version)

		// Se versão é "dev", não verificar updates
		if updater.Version == "dev" {
			fmt.Println("ℹ️  Versão de desenvolvimento - verificação de updates desabilitada")
			return nil
		}

		// Verificar updates
		fmt.Println("🔍 Verificando updates...")
		info, err := updater.CheckForUpdates()
		if err != nil {
			// Erro ao verificar - não falhar, apenas informar
			if strings.Contains(err.Error(), "repositório não encontrado") {
				fmt.Println("ℹ️  Sistema de verificação de updates desabilitado")
				fmt.Println("   (repositório GitHub ainda não configurado)")
			} else {
				fmt.Printf("⚠️  Não foi possível verificar updates: %v\n", err)
			}
			return nil
		}

		if info.Available {
			fmt.Printf("🆕 Nova versão disponível: %s → %s\n", info.CurrentVersion, info.LatestVersion)
			fmt.Printf("📦 Download: %s\n", info.ReleaseURL)

			// Exibir release notes se disponíveis (primeiras 5 linhas)
			if info.ReleaseNotes != "" {
				lines := strings.Split(info.ReleaseNotes, "\n")
				maxLines := 5
				if len(lines) < maxLines {
					maxLines = len(lines)
				}

				fmt.Printf("\n📝 Release Notes (preview):\n")
				for i := 0; i < maxLines; i++ {
					fmt.Printf("   %s\n", lines[i])
				}
				if len(lines) > maxLines {
					fmt.Printf("   ... (ver mais em %s)\n", info.ReleaseURL)
				}
			}
		} else {
			fmt.Println("✅ Você está usando a versão mais recente!")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
